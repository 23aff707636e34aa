// Package claims implements spec.md §4.1: extracting and validating the
// JWT embedded in a component or provider artifact, and gating loads
// and invocations through an optional external policy decision service.
package claims

import (
	"encoding/binary"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// wasmCustomSectionName is the custom section wasmCloud's build tooling
// embeds the artifact's signed claims JWT under.
const wasmCustomSectionName = "jwt"

// registeredClaims mirrors the fields spec.md §3 requires, as the JSON
// shape carried by the JWT's claims body.
type registeredClaims struct {
	jwt.RegisteredClaims
	Name         string   `json:"name"`
	Revision     int      `json:"rev"`
	Kind         string   `json:"kind"` // "component" | "provider"
	Capabilities []string `json:"caps,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// Validate extracts the embedded JWT from artifactBytes, verifies its
// Ed25519 signature against its issuer, checks nbf/exp, and returns the
// structured claims. Cached per-subject by the caller.
func Validate(artifactBytes []byte) (*types.Claims, error) {
	token, err := extractJWT(artifactBytes)
	if err != nil {
		return nil, err
	}
	return validateToken(token)
}

// ValidateToken validates a raw JWT string directly, used by tests and
// by the provider archive path where the token travels alongside the
// binary rather than embedded in it.
func ValidateToken(token string) (*types.Claims, error) {
	return validateToken(token)
}

func validateToken(token string) (*types.Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(token, &registeredClaims{})
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "parse claims JWT", err)
	}
	rc, ok := unverified.Claims.(*registeredClaims)
	if !ok {
		return nil, errkind.New(errkind.Validation, "unexpected claims shape")
	}
	issuer := rc.Issuer
	if issuer == "" {
		return nil, errkind.Wrap(errkind.Validation, "artifact has no issuer", errkind.ErrUnsignedArtifact)
	}

	parsed, err := jwt.ParseWithClaims(token, &registeredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != SigningMethodNKeys.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
		}
		return issuer, nil
	})
	if err != nil {
		switch {
		case isExpired(err):
			return nil, errkind.ErrExpiredToken
		case isNotYetValid(err):
			return nil, errkind.ErrNotYetValid
		default:
			return nil, errkind.Wrap(errkind.Validation, "validate claims signature", errkind.ErrBadSignature)
		}
	}
	rc, ok = parsed.Claims.(*registeredClaims)
	if !ok || !parsed.Valid {
		return nil, errkind.New(errkind.Validation, "claims failed validation")
	}

	c := &types.Claims{
		Subject:  rc.Subject,
		Issuer:   rc.Issuer,
		Name:     rc.Name,
		Revision: rc.Revision,
	}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		t := rc.ExpiresAt.Time
		c.Expires = &t
	}
	if rc.NotBefore != nil {
		t := rc.NotBefore.Time
		c.NotBefore = &t
	}
	switch rc.Kind {
	case string(types.ClaimsKindProvider):
		c.Kind = types.ClaimsKindProvider
	default:
		c.Kind = types.ClaimsKindComponent
	}
	c.Capabilities = rc.Capabilities
	c.Tags = rc.Tags
	return c, nil
}

func isExpired(err error) bool {
	return matchesValidationError(err, jwt.ErrTokenExpired)
}

func isNotYetValid(err error) bool {
	return matchesValidationError(err, jwt.ErrTokenNotValidYet)
}

func matchesValidationError(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() []error })
		if ok {
			for _, e := range u.Unwrap() {
				if matchesValidationError(e, target) {
					return true
				}
			}
			return false
		}
		single, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = single.Unwrap()
	}
	return false
}

// extractJWT walks a wasm binary's custom sections looking for the
// "jwt" section and returns its payload as a string. Sections are
// length-prefixed with LEB128, the minimal parse needed to find a named
// custom section without a full wasm decoder.
func extractJWT(data []byte) (string, error) {
	if len(data) < 8 || string(data[0:4]) != "\x00asm" {
		return "", errkind.New(errkind.Validation, "not a wasm binary")
	}
	pos := 8 // past magic + version
	for pos < len(data) {
		sectionID := data[pos]
		pos++
		size, n, err := readULEB128(data[pos:])
		if err != nil {
			return "", errkind.Wrap(errkind.Validation, "malformed wasm section header", err)
		}
		pos += n
		if pos+int(size) > len(data) {
			return "", errkind.New(errkind.Validation, "truncated wasm section")
		}
		body := data[pos : pos+int(size)]
		if sectionID == 0 { // custom section
			nameLen, n2, err := readULEB128(body)
			if err == nil && n2+int(nameLen) <= len(body) {
				name := string(body[n2 : n2+int(nameLen)])
				if name == wasmCustomSectionName {
					payload := body[n2+int(nameLen):]
					return string(payload), nil
				}
			}
		}
		pos += int(size)
	}
	return "", errkind.ErrUnsignedArtifact
}

func readULEB128(b []byte) (uint64, int, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, 0, fmt.Errorf("invalid varint")
	}
	return v, n, nil
}
