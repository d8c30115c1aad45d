package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/noah-isme/backend-pgi/internal/secret"
)

// Separator joins the order and payment identifiers in the signed payload.
const Separator = "|"

// Payload returns the canonical message signed by the gateway.
func Payload(orderID, paymentID string) string {
	return orderID + Separator + paymentID
}

// Verifier recomputes gateway payment signatures locally.
type Verifier struct {
	Key *secret.Key
}

// Sign computes the lowercase hex HMAC-SHA256 of the canonical payload.
// The only error is secret.ErrUnavailable.
func (v Verifier) Sign(orderID, paymentID string) (string, error) {
	var out string
	err := v.Key.Use(func(key []byte) error {
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(Payload(orderID, paymentID)))
		out = hex.EncodeToString(mac.Sum(nil))
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Verify reports whether claimed matches the locally computed signature.
// Malformed input yields false; a missing key is returned as an error.
func (v Verifier) Verify(orderID, paymentID, claimed string) (bool, error) {
	expected, err := v.Sign(orderID, paymentID)
	if err != nil {
		return false, err
	}
	provided := strings.TrimSpace(claimed)
	if provided == "" || orderID == "" || paymentID == "" {
		return false, nil
	}
	return hmac.Equal([]byte(expected), []byte(provided)), nil
}
