// Package webhook authenticates gateway notifications before any state is
// touched.
package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
)

const SignatureHeader = "X-Paystack-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

type Authenticator struct {
	secret []byte
}

func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate reports whether signature is the hex HMAC-SHA512 of the exact
// raw body under the shared secret.
func (a *Authenticator) Authenticate(raw []byte, signature string) bool {
	if len(a.secret) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha512.Size {
		return false
	}
	return hmac.Equal(got, a.Sign(raw))
}

func (a *Authenticator) Sign(raw []byte) []byte {
	mac := hmac.New(sha512.New, a.secret)
	mac.Write(raw)
	return mac.Sum(nil)
}
