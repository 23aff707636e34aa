package security

import (
	"fmt"

	"github.com/nats-io/nkeys"
)

// XKeyPair wraps an nkeys curve (x25519) key pair, used to encrypt the
// secrets block of a provider's HostData blob per spec.md §6. The
// provider decrypts with its own xkey private half; only the host's
// public key travels in HostData (its host_xkey field).
type XKeyPair struct {
	kp     nkeys.KeyPair
	Public string
}

// NewXKeyPair generates a fresh curve key pair for one provider start.
func NewXKeyPair() (*XKeyPair, error) {
	kp, err := nkeys.CreateCurveKeys()
	if err != nil {
		return nil, fmt.Errorf("generate xkey pair: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive xkey public key: %w", err)
	}
	return &XKeyPair{kp: kp, Public: pub}, nil
}

// Seal encrypts plaintext for recipientPublicKey using the host's
// ephemeral private half, so only the holder of recipientPublicKey's
// private half can open it.
func (x *XKeyPair) Seal(plaintext []byte, recipientPublicKey string) ([]byte, error) {
	out, err := x.kp.Seal(plaintext, recipientPublicKey)
	if err != nil {
		return nil, fmt.Errorf("seal secrets for provider: %w", err)
	}
	return out, nil
}

// Open decrypts a payload sealed by senderPublicKey's Seal call.
func (x *XKeyPair) Open(ciphertext []byte, senderPublicKey string) ([]byte, error) {
	out, err := x.kp.Open(ciphertext, senderPublicKey)
	if err != nil {
		return nil, fmt.Errorf("open sealed secrets: %w", err)
	}
	return out, nil
}
