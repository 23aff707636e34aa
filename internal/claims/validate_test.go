package claims

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
)

func signTestToken(t *testing.T, issuer nkeys.KeyPair, subject string, mutate func(*registeredClaims)) string {
	t.Helper()
	issuerPub, err := issuer.PublicKey()
	require.NoError(t, err)

	rc := &registeredClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   issuerPub,
			IssuedAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Name:     "test-component",
		Revision: 1,
	}
	if mutate != nil {
		mutate(rc)
	}

	token := jwt.NewWithClaims(SigningMethodNKeys, rc)
	signed, err := token.SignedString(issuer)
	require.NoError(t, err)
	return signed
}

func TestValidateTokenRoundTrip(t *testing.T) {
	issuer, err := nkeys.CreateAccount()
	require.NoError(t, err)
	subjectKP, err := nkeys.CreateModule()
	require.NoError(t, err)
	subjectPub, err := subjectKP.PublicKey()
	require.NoError(t, err)

	signed := signTestToken(t, issuer, subjectPub, func(rc *registeredClaims) {
		rc.Kind = "component"
		rc.Capabilities = []string{"wasi:http/incoming-handler"}
	})

	claims, err := ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, subjectPub, claims.Subject)
	assert.Equal(t, "test-component", claims.Name)
	assert.Equal(t, 1, claims.Revision)
	assert.Contains(t, claims.Capabilities, "wasi:http/incoming-handler")
}

func TestValidateTokenExpired(t *testing.T) {
	issuer, err := nkeys.CreateAccount()
	require.NoError(t, err)
	subjectKP, err := nkeys.CreateModule()
	require.NoError(t, err)
	subjectPub, err := subjectKP.PublicKey()
	require.NoError(t, err)

	signed := signTestToken(t, issuer, subjectPub, func(rc *registeredClaims) {
		past := jwt.NewNumericDate(time.Now().Add(-time.Hour))
		rc.ExpiresAt = past
	})

	_, err = ValidateToken(signed)
	require.Error(t, err)
	assert.Equal(t, errkind.ErrExpiredToken, err)
}

func TestValidateTokenNotYetValid(t *testing.T) {
	issuer, err := nkeys.CreateAccount()
	require.NoError(t, err)
	subjectKP, err := nkeys.CreateModule()
	require.NoError(t, err)
	subjectPub, err := subjectKP.PublicKey()
	require.NoError(t, err)

	signed := signTestToken(t, issuer, subjectPub, func(rc *registeredClaims) {
		future := jwt.NewNumericDate(time.Now().Add(time.Hour))
		rc.NotBefore = future
	})

	_, err = ValidateToken(signed)
	require.Error(t, err)
}

func TestValidateTokenBadSignature(t *testing.T) {
	issuer, err := nkeys.CreateAccount()
	require.NoError(t, err)
	other, err := nkeys.CreateAccount()
	require.NoError(t, err)
	subjectKP, err := nkeys.CreateModule()
	require.NoError(t, err)
	subjectPub, err := subjectKP.PublicKey()
	require.NoError(t, err)

	issuerPub, err := issuer.PublicKey()
	require.NoError(t, err)
	rc := &registeredClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subjectPub, Issuer: issuerPub},
		Name:             "tampered",
	}
	// sign with a different key than the claimed issuer
	token := jwt.NewWithClaims(SigningMethodNKeys, rc)
	signed, err := token.SignedString(other)
	require.NoError(t, err)

	_, err = ValidateToken(signed)
	require.Error(t, err)
}

func TestExtractJWTFromWasmCustomSection(t *testing.T) {
	token := "header.payload.signature"
	wasm := buildWasmWithCustomSection(t, "jwt", token)

	extracted, err := extractJWT(wasm)
	require.NoError(t, err)
	assert.Equal(t, token, extracted)
}

func TestExtractJWTMissingSection(t *testing.T) {
	wasm := buildWasmWithCustomSection(t, "name", "not-a-jwt")
	_, err := extractJWT(wasm)
	require.Error(t, err)
}

// buildWasmWithCustomSection constructs a minimal wasm binary with a
// single custom section of the given name and payload.
func buildWasmWithCustomSection(t *testing.T, name, payload string) []byte {
	t.Helper()
	var body []byte
	body = append(body, encodeULEB128(uint64(len(name)))...)
	body = append(body, []byte(name)...)
	body = append(body, []byte(payload)...)

	var out []byte
	out = append(out, []byte("\x00asm")...)
	out = append(out, 1, 0, 0, 0) // version 1
	out = append(out, 0)          // section id 0 = custom
	out = append(out, encodeULEB128(uint64(len(body)))...)
	out = append(out, body...)
	return out
}

func encodeULEB128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

