package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgBcrypt   = "bcrypt"
	AlgArgon2ID = "argon2id"

	DefaultBcryptCost = 12

	argon2Prefix = "$argon2id$"
)

// Hasher produce hashes nuevos con su algoritmo. Verify acepta cualquier
// formato soportado, así un cambio de algoritmo no invalida cuentas existentes.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// Argon2Params son los parámetros de argon2id.
type Argon2Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultArgon2 son parámetros razonables para un servidor.
var DefaultArgon2 = Argon2Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

// NewHasher retorna el hasher para alg (bcrypt por defecto).
func NewHasher(alg string, bcryptCost int) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(alg)) {
	case "", AlgBcrypt:
		if bcryptCost == 0 {
			bcryptCost = DefaultBcryptCost
		}
		if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("password: bcrypt cost %d fuera de rango", bcryptCost)
		}
		return BcryptHasher{Cost: bcryptCost}, nil
	case AlgArgon2ID:
		return Argon2Hasher{Params: DefaultArgon2}, nil
	default:
		return nil, fmt.Errorf("password: algoritmo %q no soportado", alg)
	}
}

// BcryptHasher hashea con bcrypt.
type BcryptHasher struct{ Cost int }

func (h BcryptHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("password: empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (BcryptHasher) Verify(plain, hash string) bool { return Verify(plain, hash) }

// Argon2Hasher devuelve un PHC string:
// $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
type Argon2Hasher struct{ Params Argon2Params }

func (h Argon2Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("password: empty")
	}
	p := h.Params
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

func (Argon2Hasher) Verify(plain, hash string) bool { return Verify(plain, hash) }

// Verify compara plain contra un hash bcrypt o argon2id.
func Verify(plain, hash string) bool {
	if strings.HasPrefix(hash, argon2Prefix) {
		return verifyArgon2(plain, hash)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func verifyArgon2(plain, phc string) bool {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, dk
	parts := strings.Split(phc, "$")
	if len(parts) != 6 {
		return false
	}
	var v int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &v); err != nil || v != argon2.Version {
		return false
	}
	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	stored, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(stored) == 0 {
		return false
	}
	key := argon2.IDKey([]byte(plain), salt, t, m, p, uint32(len(stored)))
	return subtle.ConstantTimeCompare(key, stored) == 1
}
