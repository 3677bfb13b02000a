package auth

import (
	"github.com/goliatone/hashid/pkg/hashid"
)

// CapabilityHash mints the stable per-account hash used as a masquerade
// capability token and in one-shot activation links. Deterministic for a
// given username, so re-minting never invalidates issued links.
func CapabilityHash(username string) (string, error) {
	if username == "" {
		return "", ErrNoEmptyString
	}

	id, err := hashid.NewUUID(username)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}
