package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapabilities_Allows(t *testing.T) {
	c := NewCapabilities("cad:read", PermWSSubscribe, " ")

	require.True(t, c.Allows("cad:read"))
	require.True(t, c.Allows(PermWSSubscribe))
	require.False(t, c.Allows("cad:write"))
	require.False(t, c.Allows("cad:*"), "no hay jerarquía de permisos")
	require.True(t, c.Allows(""), "sin gate siempre pasa")
	require.Len(t, c, 2)
}

func TestCapabilities_Wildcard(t *testing.T) {
	c := NewCapabilities(Wildcard)

	require.True(t, c.Allows("evidence:write"))
	require.NoError(t, c.Require("anything:at-all"))
}

func TestCapabilities_Require(t *testing.T) {
	c := NewCapabilities("records:read")

	require.ErrorIs(t, c.Require("records:write"), ErrForbidden)
	require.Equal(t, []string{"records:read"}, c.List())
}

func TestRoleTemplates(t *testing.T) {
	byName := map[string][]string{}
	for _, r := range RoleTemplates() {
		byName[r.Name] = r.Perms
	}

	require.Equal(t, []string{Wildcard}, byName["Community Owner"])
	require.ElementsMatch(t, PermCatalog(), byName["Community Admin"])
	require.Contains(t, byName, DefaultRole)
	require.Contains(t, PermCatalog(), "evidence:write")
	require.NotContains(t, PermCatalog(), Wildcard)
}
