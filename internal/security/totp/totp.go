// Package totp valida códigos de un solo uso (RFC 6238) para el segundo factor.
package totp

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	otptotp "github.com/pquerna/otp/totp"
)

const (
	DefaultPeriod = 30
	DefaultSkew   = 1
	digits        = 6
)

// Verifier acepta el paso actual y +/- Skew pasos adyacentes.
type Verifier struct {
	Issuer string
	Period uint
	Skew   uint

	// Now permite fijar el reloj en tests.
	Now func() time.Time
}

// NewVerifier retorna un verifier con periodo 30s y ventana +/-1 (~90s).
func NewVerifier(issuer string) *Verifier {
	return &Verifier{Issuer: issuer, Period: DefaultPeriod, Skew: DefaultSkew, Now: time.Now}
}

func (v *Verifier) opts() otptotp.ValidateOpts {
	period := v.Period
	if period == 0 {
		period = DefaultPeriod
	}
	return otptotp.ValidateOpts{
		Period:    period,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func (v *Verifier) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

// Validate compara code contra cada paso de la ventana. Pasos <= lastStep se
// saltean (anti-replay). Retorna el paso aceptado.
func (v *Verifier) Validate(secretB32, code string, lastStep int64) (step int64, ok bool) {
	code = strings.TrimSpace(code)
	if len(code) != digits || secretB32 == "" {
		return 0, false
	}
	opts := v.opts()
	period := int64(opts.Period)
	current := v.now().Unix() / period
	skew := int64(v.Skew)

	for s := current - skew; s <= current+skew; s++ {
		if s <= lastStep {
			continue
		}
		want, err := otptotp.GenerateCodeCustom(secretB32, time.Unix(s*period, 0), opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return s, true
		}
	}
	return 0, false
}

// Enrollment es un secreto nuevo listo para mostrarse como QR.
type Enrollment struct {
	Secret string // base32 sin padding
	URL    string // otpauth://
}

// Enroll genera un secreto para account (típicamente el email).
func (v *Verifier) Enroll(account string) (Enrollment, error) {
	issuer := v.Issuer
	if issuer == "" {
		issuer = "OpsLink CAD"
	}
	key, err := otptotp.Generate(otptotp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      v.opts().Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("totp: generate: %w", err)
	}
	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// CodeAt genera el código para t. Usado por tests y herramientas de soporte.
func (v *Verifier) CodeAt(secretB32 string, t time.Time) (string, error) {
	return otptotp.GenerateCodeCustom(secretB32, t, v.opts())
}
