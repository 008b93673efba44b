package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Suganthan96/NCP/internal/domain"
)

// SessionKeyTTL is the default lifetime of a session key.
const SessionKeyTTL = 7 * 24 * time.Hour

// newSessionKey creates fresh key material from the process CSPRNG.
// Material is never derived from caller input: an observer who knows
// the node id must not be able to reconstruct the key. The public
// address is a 20-byte digest of the material, hex-encoded in the
// usual 0x form.
func newSessionKey(ownerNodeID, accountAddress string, now time.Time, ttl time.Duration, scope *domain.SessionKeyScope) (domain.SessionKey, error) {
	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return domain.SessionKey{}, fmt.Errorf("generate key material: %w", err)
	}
	digest := sha256.Sum256(material)
	if ttl <= 0 {
		ttl = SessionKeyTTL
	}
	return domain.SessionKey{
		PrivateKey:     "0x" + hex.EncodeToString(material),
		PublicAddress:  "0x" + hex.EncodeToString(digest[12:]),
		OwnerNodeID:    ownerNodeID,
		AccountAddress: accountAddress,
		CreatedAt:      now.UTC().Format(time.RFC3339),
		ExpiresAt:      now.Add(ttl).UTC().Format(time.RFC3339),
		Authorized:     false,
		Scope:          scope,
	}, nil
}
