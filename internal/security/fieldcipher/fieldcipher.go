// Package fieldcipher cifra atributos sensibles antes de persistirlos.
//
// Usa AES-256-GCM con nonce aleatorio de 96 bits por llamada y AAD fija, de modo
// que un blob no pueda reutilizarse en otro propósito. La clave son los primeros
// 32 bytes de la master key de 96 bytes; el resto queda reservado.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
)

const (
	// Algorithm es la etiqueta persistida en cada blob.
	Algorithm = "A256GCM"

	// MasterKeySize es el largo exacto de la master key decodificada.
	MasterKeySize = 96

	keySize   = 32
	nonceSize = 12
	tagSize   = 16

	defaultAAD = "opslinkcad_fle"
)

var (
	// ErrIntegrity indica blob malformado, algoritmo desconocido o tag inválido.
	ErrIntegrity = errors.New("fieldcipher: integrity check failed")

	// ErrInvalidKey indica una master key con largo o encoding inválido.
	ErrInvalidKey = errors.New("fieldcipher: invalid master key")
)

// Cipher es seguro para uso concurrente.
type Cipher struct {
	aead cipher.AEAD
	aad  []byte
	rand io.Reader
}

// Option modifica un Cipher en construcción.
type Option func(*Cipher)

// WithAAD reemplaza el contexto de propósito (AAD). Blobs cifrados con otro
// contexto no descifran.
func WithAAD(aad string) Option {
	return func(c *Cipher) { c.aad = []byte(aad) }
}

// New construye el cipher a partir de la master key cruda de 96 bytes.
func New(master []byte, opts ...Option) (*Cipher, error) {
	if len(master) != MasterKeySize {
		return nil, fmt.Errorf("%w: esperado %d bytes, obtuvo %d", ErrInvalidKey, MasterKeySize, len(master))
	}
	key := make([]byte, keySize)
	copy(key, master[:keySize])

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	c := &Cipher{aead: aead, aad: []byte(defaultAAD), rand: rand.Reader}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewFromBase64 decodifica la master key (base64 estándar) y construye el cipher.
func NewFromBase64(s string, opts ...Option) (*Cipher, error) {
	raw, err := DecodeMasterKey(s)
	if err != nil {
		return nil, err
	}
	return New(raw, opts...)
}

// DecodeMasterKey valida que s sea base64 y decodifique a exactamente 96 bytes.
func DecodeMasterKey(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrInvalidKey, err)
	}
	if len(raw) != MasterKeySize {
		return nil, fmt.Errorf("%w: esperado %d bytes, obtuvo %d", ErrInvalidKey, MasterKeySize, len(raw))
	}
	return raw, nil
}

// Encrypt cifra plaintext con un nonce nuevo.
func (c *Cipher) Encrypt(plaintext string) (types.EncryptedBlob, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return types.EncryptedBlob{}, fmt.Errorf("fieldcipher: nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), c.aad)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return types.EncryptedBlob{
		Alg: Algorithm,
		IV:  base64.StdEncoding.EncodeToString(nonce),
		CT:  base64.StdEncoding.EncodeToString(ct),
		Tag: base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Decrypt verifica algoritmo y tag antes de devolver el texto plano.
// Cualquier falla retorna ErrIntegrity y string vacío.
func (c *Cipher) Decrypt(b types.EncryptedBlob) (string, error) {
	if b.Alg != Algorithm {
		return "", fmt.Errorf("%w: algoritmo %q", ErrIntegrity, b.Alg)
	}
	nonce, err := base64.StdEncoding.DecodeString(b.IV)
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: iv", ErrIntegrity)
	}
	ct, err := base64.StdEncoding.DecodeString(b.CT)
	if err != nil {
		return "", fmt.Errorf("%w: ct", ErrIntegrity)
	}
	tag, err := base64.StdEncoding.DecodeString(b.Tag)
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: tag", ErrIntegrity)
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	pt, err := c.aead.Open(nil, nonce, sealed, c.aad)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(pt), nil
}
