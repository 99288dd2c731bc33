package types

// EncryptedBlob es un valor cifrado con FieldCipher. Todos los campos binarios
// van en base64 estándar.
type EncryptedBlob struct {
	Alg string `json:"alg" bson:"alg"`
	IV  string `json:"iv" bson:"iv"`
	CT  string `json:"ct" bson:"ct"`
	Tag string `json:"tag" bson:"tag"`
}

// IsZero reporta si el blob está vacío (nunca escrito).
func (b EncryptedBlob) IsZero() bool {
	return b.Alg == "" && b.IV == "" && b.CT == "" && b.Tag == ""
}
