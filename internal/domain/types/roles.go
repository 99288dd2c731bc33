package types

// Capabilities usadas por el core.
const (
	PermWSSubscribe   = "ws:subscribe"
	PermAuditRead     = "audit:read"
	PermEvidenceRead  = "evidence:read"
	PermEvidenceWrite = "evidence:write"
)

// DefaultRole se asigna cuando el registro no indica rol.
const DefaultRole = "Civilian"

// catalogDomains son los dominios con perms read/write.
var catalogDomains = []string{
	"auth", "community", "cad", "rms", "fireems", "records",
	"evidence", "jail", "civilian", "reports", "ops",
}

// PermCatalog retorna todas las capabilities conocidas, sin el wildcard.
func PermCatalog() []string {
	out := []string{PermWSSubscribe, PermAuditRead}
	for _, d := range catalogDomains {
		out = append(out, d+":read", d+":write")
	}
	return out
}

// RoleTemplate es un rol que se siembra en cada tenant.
type RoleTemplate struct {
	Name  string
	Perms []string
}

// RoleTemplates retorna los roles base de un tenant.
func RoleTemplates() []RoleTemplate {
	return []RoleTemplate{
		{Name: "Community Owner", Perms: []string{Wildcard}},
		{Name: "Community Admin", Perms: PermCatalog()},
		{Name: "Dispatcher", Perms: []string{"cad:read", "cad:write", PermWSSubscribe, "reports:read"}},
		{Name: "Officer", Perms: []string{"cad:read", "cad:write", "rms:read", "rms:write", "records:read", PermEvidenceRead, PermWSSubscribe}},
		{Name: "Records", Perms: []string{"records:read", "records:write", "reports:read", "reports:write"}},
		{Name: "Fire and EMS", Perms: []string{"fireems:read", "fireems:write", "cad:read", PermWSSubscribe}},
		{Name: DefaultRole, Perms: []string{"civilian:read", "civilian:write"}},
	}
}
