package framework

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nkeys"
	"github.com/stretchr/testify/require"

	"github.com/wasmcloud/wasmcloud-host/internal/claims"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// componentClaims mirrors the unexported JSON shape internal/claims
// parses a component JWT into, built independently here since JWT
// round-tripping happens over the wire shape (json tags), not Go type
// identity, the same way internal/claims/validate_test.go signs tokens
// it never directly constructs the unexported parsing type for.
type componentClaims struct {
	jwt.RegisteredClaims
	Name         string   `json:"name"`
	Revision     int      `json:"rev"`
	Kind         string   `json:"kind"`
	Capabilities []string `json:"caps,omitempty"`
}

// SignedComponentArtifact writes a minimal wasm module (just the magic
// header, no exports: sufficient for Scale's fetch/claims/policy path,
// not for driving a guest invocation) carrying an embedded, validly
// signed claims JWT in a custom section named "jwt", and returns a
// file ArtifactRef whose Value is its absolute path, per spec.md §3's
// artifact shape.
//
// Grounded on internal/claims/validate_test.go's signTestToken and
// buildWasmWithCustomSection helpers, reproduced here since those are
// unexported test helpers of a different package.
func SignedComponentArtifact(t *testing.T, name, kind string, capabilities []string) types.ArtifactRef {
	t.Helper()

	issuer, err := nkeys.CreateAccount()
	require.NoError(t, err)
	subject, err := nkeys.CreateModule()
	require.NoError(t, err)
	subjectPub, err := subject.PublicKey()
	require.NoError(t, err)
	issuerPub, err := issuer.PublicKey()
	require.NoError(t, err)

	rc := &componentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subjectPub,
			Issuer:   issuerPub,
			IssuedAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Name:         name,
		Revision:     1,
		Kind:         kind,
		Capabilities: capabilities,
	}
	token := jwt.NewWithClaims(claims.SigningMethodNKeys, rc)
	signed, err := token.SignedString(issuer)
	require.NoError(t, err)

	wasm := wasmWithCustomSection("jwt", signed)

	dir := t.TempDir()
	path := filepath.Join(dir, name+".wasm")
	require.NoError(t, os.WriteFile(path, wasm, 0o644))

	return types.ArtifactRef{Kind: types.ArtifactRefFile, Value: path}
}

func wasmWithCustomSection(name, payload string) []byte {
	var body []byte
	body = append(body, encodeULEB128(uint64(len(name)))...)
	body = append(body, []byte(name)...)
	body = append(body, []byte(payload)...)

	var out []byte
	out = append(out, []byte("\x00asm")...)
	out = append(out, 1, 0, 0, 0)
	out = append(out, 0)
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
