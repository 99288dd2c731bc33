// Package password valida y hashea contraseñas.
package password

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrWeak indica que la contraseña no cumple la política.
var ErrWeak = errors.New("password: too weak")

// Policy define los requisitos mínimos de una contraseña.
type Policy struct {
	MinLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool

	// Blacklist opcional de contraseñas comunes.
	Blacklist *Blacklist
}

// DefaultPolicy: 12+ caracteres con mayúscula, minúscula y dígito.
func DefaultPolicy() Policy {
	return Policy{MinLength: 12, RequireUpper: true, RequireLower: true, RequireDigit: true}
}

// Violations retorna las reglas incumplidas ("too_short", "missing_upper", ...).
func (p Policy) Violations(s string) []string {
	var reasons []string
	if len([]rune(s)) < p.MinLength {
		reasons = append(reasons, "too_short")
	}
	var hasU, hasL, hasD bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		}
	}
	if p.RequireUpper && !hasU {
		reasons = append(reasons, "missing_upper")
	}
	if p.RequireLower && !hasL {
		reasons = append(reasons, "missing_lower")
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, "missing_digit")
	}
	if p.Blacklist.Contains(s) {
		reasons = append(reasons, "blacklisted")
	}
	return reasons
}

// Validate retorna ErrWeak con las reglas incumplidas, o nil.
func (p Policy) Validate(s string) error {
	if r := p.Violations(s); len(r) > 0 {
		return fmt.Errorf("%w: %s", ErrWeak, strings.Join(r, ","))
	}
	return nil
}

// Blacklist es un set de contraseñas prohibidas, comparadas en minúsculas.
type Blacklist struct {
	data map[string]struct{}
}

// LoadBlacklist lee un archivo con una contraseña por línea; "#" comenta.
// Un path vacío retorna una lista vacía.
func LoadBlacklist(path string) (*Blacklist, error) {
	if strings.TrimSpace(path) == "" {
		return &Blacklist{data: map[string]struct{}{}}, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBlacklist(f)
}

// ReadBlacklist construye la lista desde un reader.
func ReadBlacklist(r io.Reader) (*Blacklist, error) {
	bl := &Blacklist{data: map[string]struct{}{}}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s := strings.TrimSpace(strings.ToLower(sc.Text()))
		if s != "" && !strings.HasPrefix(s, "#") {
			bl.data[s] = struct{}{}
		}
	}
	return bl, sc.Err()
}

// Contains es nil-safe.
func (b *Blacklist) Contains(pwd string) bool {
	if b == nil {
		return false
	}
	_, ok := b.data[strings.ToLower(strings.TrimSpace(pwd))]
	return ok
}
