package replication

import (
	"crypto/rsa"

	"github.com/shog-ai/shoggoth/internal/identity"
)

// decodeStrippedPublicKey parses the stripped public_key text carried
// in a Fingerprint back into an *rsa.PublicKey so the replication
// loops can verify a fetched resource's signature exactly as the
// publish path does.
func decodeStrippedPublicKey(stripped string) (*rsa.PublicKey, error) {
	return identity.LoadPublicKey([]byte(identity.UnstripPublicKey(stripped)))
}
