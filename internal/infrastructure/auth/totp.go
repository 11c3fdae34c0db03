package auth

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// TOTPProvisioner creates TOTP enrollments and checks codes against a
// shared secret.
type TOTPProvisioner struct {
	issuer string
}

// NewTOTPProvisioner creates a provisioner labelled with the issuer
// shown in authenticator apps.
func NewTOTPProvisioner(issuer string) *TOTPProvisioner {
	return &TOTPProvisioner{issuer: issuer}
}

// TOTPEnrollment carries the generated secret and the otpauth URL a
// client renders as a QR code. Neither is persisted in the clear.
type TOTPEnrollment struct {
	Secret string
	URL    string
}

// Generate creates a fresh TOTP secret for the account
func (p *TOTPProvisioner) Generate(account string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: account,
	})
	if err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}
	return &TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Verify checks a 6-digit code against the secret, allowing one period
// of clock skew
func (p *TOTPProvisioner) Verify(code, secret string) bool {
	return totp.Validate(code, secret)
}

// GenerateBackupCodes produces n single-use recovery codes. The raw
// codes are returned for one-time display; only the bcrypt hashes are
// meant to be stored.
func GenerateBackupCodes(n int) (raw []string, hashes []string, err error) {
	encoder := base32.StdEncoding.WithPadding(base32.NoPadding)
	raw = make([]string, 0, n)
	hashes = make([]string, 0, n)

	for i := 0; i < n; i++ {
		buf := make([]byte, 5)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, fmt.Errorf("generating backup code: %w", err)
		}
		code := encoder.EncodeToString(buf)

		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing backup code: %w", err)
		}

		raw = append(raw, code)
		hashes = append(hashes, string(hash))
	}

	return raw, hashes, nil
}
