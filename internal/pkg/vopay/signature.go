package vopay

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Verifier checks VoPay webhook validation keys against the shared secret.
// VoPay signs only the object id, not the payload:
// ValidationKey = hex(HMAC-SHA1(shared_secret, id)). Because the payload
// itself is unsigned, the raw event log keeps full payloads and the
// reconciler treats every delivery as untrusted-but-authentic (idempotent,
// order-tolerant).
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier with an injected shared secret so it can be
// tested with a fixture secret instead of ambient configuration.
func NewVerifier(sharedSecret string) *Verifier {
	return &Verifier{secret: strings.TrimSpace(sharedSecret)}
}

// Verify reports whether validationKey is the expected signature for
// externalID. The comparison is constant time. Empty or malformed input
// never validates.
func (v *Verifier) Verify(externalID, validationKey string) bool {
	id := strings.TrimSpace(externalID)
	key := strings.TrimSpace(validationKey)
	if v.secret == "" || id == "" || key == "" {
		return false
	}

	delivered, err := hex.DecodeString(strings.ToLower(key))
	if err != nil {
		return false
	}

	mac := hmac.New(sha1.New, []byte(v.secret))
	mac.Write([]byte(id))
	return hmac.Equal(mac.Sum(nil), delivered)
}

// Sign returns the validation key VoPay would attach for externalID.
func (v *Verifier) Sign(externalID string) string {
	mac := hmac.New(sha1.New, []byte(v.secret))
	mac.Write([]byte(externalID))
	return hex.EncodeToString(mac.Sum(nil))
}
