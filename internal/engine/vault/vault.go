package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	apperrors "switchboard/internal/pkg/errors"
)

// MinMasterKeyLength is the minimum accepted master secret length in bytes.
const MinMasterKeyLength = 32

const keyInfo = "switchboard/vault/aes-256-gcm/v1"

var (
	ErrIntegrity = apperrors.New(apperrors.KindIntegrity, "sealed secret failed integrity check")
	ErrKey       = apperrors.New(apperrors.KindKey, "vault master key is not configured")
)

// Sealed is a secret encrypted with AES-256-GCM. Tag is the GCM
// authentication tag split off the end of the ciphertext.
type Sealed struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Tag        []byte `json:"tag"`
}

// Vault seals and opens per-tenant secrets. The zero Vault has no key and
// fails every operation with ErrKey.
type Vault struct {
	gcm cipher.AEAD
}

// New derives the AES key from masterKey with HKDF-SHA256.
func New(masterKey string) (*Vault, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, apperrors.New(apperrors.KindKey,
			fmt.Sprintf("vault master key must be at least %d bytes", MinMasterKeyLength))
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), nil, []byte(keyInfo)), key); err != nil {
		return nil, apperrors.Wrap(apperrors.KindKey, "deriving vault key", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindKey, "creating AES cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindKey, "creating GCM", err)
	}

	return &Vault{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (Sealed, error) {
	if v == nil || v.gcm == nil {
		return Sealed{}, ErrKey
	}

	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Sealed{}, apperrors.Wrap(apperrors.KindInternal, "generating nonce", err)
	}

	out := v.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(out) - v.gcm.Overhead()

	return Sealed{
		Ciphertext: out[:split],
		Nonce:      nonce,
		Tag:        out[split:],
	}, nil
}

func (v *Vault) Decrypt(s Sealed) (string, error) {
	if v == nil || v.gcm == nil {
		return "", ErrKey
	}
	if len(s.Nonce) != v.gcm.NonceSize() || len(s.Tag) != v.gcm.Overhead() {
		return "", ErrIntegrity
	}

	buf := make([]byte, 0, len(s.Ciphertext)+len(s.Tag))
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)

	plaintext, err := v.gcm.Open(nil, s.Nonce, buf, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}

// Mask redacts a secret for display as first4***last4. Secrets of eight
// characters or fewer are fully redacted.
func Mask(secret string) string {
	r := []rune(secret)
	if len(r) <= 8 {
		return "***"
	}
	return string(r[:4]) + "***" + string(r[len(r)-4:])
}
