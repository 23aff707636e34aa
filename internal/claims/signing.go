package claims

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nkeys"
)

// signingMethodNKeys implements jwt.SigningMethod on top of nkeys
// Ed25519 key pairs, the same identity primitive wasmCloud uses for
// hosts, clusters and artifact issuers. It lets the validator reuse
// golang-jwt's header/claims plumbing while deferring signature
// verification to nkeys.
type signingMethodNKeys struct{}

// SigningMethodNKeys is registered under alg "EdDSA-NKEYS".
var SigningMethodNKeys = &signingMethodNKeys{}

func init() {
	jwt.RegisterSigningMethod(SigningMethodNKeys.Alg(), func() jwt.SigningMethod {
		return SigningMethodNKeys
	})
}

func (m *signingMethodNKeys) Alg() string { return "EdDSA-NKEYS" }

func (m *signingMethodNKeys) Verify(signingString string, sig []byte, key interface{}) error {
	issuerPub, ok := key.(string)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	kp, err := nkeys.FromPublicKey(issuerPub)
	if err != nil {
		return errors.Join(jwt.ErrSignatureInvalid, err)
	}
	if err := kp.Verify([]byte(signingString), sig); err != nil {
		return errors.Join(jwt.ErrSignatureInvalid, err)
	}
	return nil
}

func (m *signingMethodNKeys) Sign(signingString string, key interface{}) ([]byte, error) {
	kp, ok := key.(nkeys.KeyPair)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return kp.Sign([]byte(signingString))
}
