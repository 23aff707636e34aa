// Package security holds the host's cryptographic concerns: Ed25519
// host/cluster identity key pairs and invocation signing (nkeys, the
// same scheme wasmCloud and the NATS ecosystem use), AES-256-GCM secret
// encryption at rest (adapted from the teacher's CertAuthority-adjacent
// secrets manager), xkey-based secret encryption for provider HostData,
// and TLS trust-store selection for outbound connections.
package security

import (
	"fmt"

	"github.com/nats-io/nkeys"
)

// KeyPair wraps an nkeys key pair with the role it was minted for.
type KeyPair struct {
	kp     nkeys.KeyPair
	Public string
}

// NewHostKeyPair generates a fresh Ed25519 host identity key pair.
func NewHostKeyPair() (*KeyPair, error) {
	return newKeyPair(nkeys.CreateServer)
}

// NewClusterKeyPair generates a fresh Ed25519 cluster (invocation
// signing) key pair, distinct from the host identity key pair.
func NewClusterKeyPair() (*KeyPair, error) {
	return newKeyPair(nkeys.CreateCluster)
}

// KeyPairFromSeed restores a key pair from its nkeys seed string, as
// passed via --host-seed / --cluster-seed or WASMCLOUD_HOST_SEED /
// WASMCLOUD_CLUSTER_SEED.
func KeyPairFromSeed(seed string) (*KeyPair, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, fmt.Errorf("parse nkeys seed: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &KeyPair{kp: kp, Public: pub}, nil
}

func newKeyPair(create func() (nkeys.KeyPair, error)) (*KeyPair, error) {
	kp, err := create()
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &KeyPair{kp: kp, Public: pub}, nil
}

// Sign signs data with the key pair's private key, used to sign
// outgoing invocation envelopes with the cluster key.
func (k *KeyPair) Sign(data []byte) ([]byte, error) {
	sig, err := k.kp.Sign(data)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// Verify checks a signature against the key pair's public key.
func (k *KeyPair) Verify(data, sig []byte) error {
	if err := k.kp.Verify(data, sig); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// VerifyWithPublicKey checks a signature against an arbitrary nkeys
// public key string, used by a receiver that only knows the sender's
// advertised cluster public key, not its private key.
func VerifyWithPublicKey(pubKey string, data, sig []byte) error {
	kp, err := nkeys.FromPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	if err := kp.Verify(data, sig); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// Seed returns the seed string for persistence; callers should never
// log this value.
func (k *KeyPair) Seed() (string, error) {
	seed, err := k.kp.Seed()
	if err != nil {
		return "", fmt.Errorf("export seed: %w", err)
	}
	return string(seed), nil
}
