// Package cardsign produces detached JWS signatures for the agent card.
package cardsign

import (
	"fmt"
	"os"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
)

// Signer signs card payloads with a configured private key.
type Signer struct {
	key jwk.Key
	alg jwa.SignatureAlgorithm
}

// NewSigner loads a PEM-encoded private key and prepares it for signing.
// The signature algorithm follows the key type: ES256 for EC keys, RS256
// for RSA keys, EdDSA for Ed25519 keys.
func NewSigner(keyFile, keyID string) (*Signer, error) {
	pemData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	key, err := jwk.ParseKey(pemData, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	if keyID != "" {
		if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
			return nil, fmt.Errorf("set key id: %w", err)
		}
	}

	alg, err := algorithmFor(key)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, alg: alg}, nil
}

func algorithmFor(key jwk.Key) (jwa.SignatureAlgorithm, error) {
	switch key.KeyType() {
	case jwa.EC:
		return jwa.ES256, nil
	case jwa.RSA:
		return jwa.RS256, nil
	case jwa.OKP:
		return jwa.EdDSA, nil
	default:
		return "", fmt.Errorf("unsupported key type %q", key.KeyType())
	}
}

// Sign returns a detached JWS signature over the given payload. The
// payload must be the canonical card JSON with the signatures field
// excluded; verifiers reconstruct it the same way.
func (s *Signer) Sign(payload []byte) (a2a.AgentCardSignature, error) {
	compact, err := jws.Sign(payload, jws.WithKey(s.alg, s.key))
	if err != nil {
		return a2a.AgentCardSignature{}, fmt.Errorf("sign card: %w", err)
	}
	parts := strings.Split(string(compact), ".")
	if len(parts) != 3 {
		return a2a.AgentCardSignature{}, fmt.Errorf("unexpected jws form")
	}
	return a2a.AgentCardSignature{
		Protected: parts[0],
		Signature: parts[2],
	}, nil
}
