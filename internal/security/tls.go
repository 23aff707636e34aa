package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TrustMode selects where the TLS trust store used for outbound OCI and
// NATS connections comes from (spec.md §4.2: "honours a configured TLS
// trust store (native roots or webpki)"). "webpki" here means a
// vendored root bundle supplied as a PEM file, mirroring the
// certificate-loading shape of the teacher's certs.go without owning a
// certificate authority of its own.
type TrustMode string

const (
	TrustNative   TrustMode = "native"
	TrustWebPKI   TrustMode = "webpki"
	TrustInsecure TrustMode = "insecure"
)

// TLSConfig builds a *tls.Config for the given trust mode. webpkiBundle
// is a path to a PEM file of trust roots, required only when mode is
// TrustWebPKI.
func TLSConfig(mode TrustMode, webpkiBundle string) (*tls.Config, error) {
	switch mode {
	case TrustInsecure:
		return &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}, nil // #nosec G402 -- explicit opt-in only
	case TrustWebPKI:
		pool := x509.NewCertPool()
		data, err := os.ReadFile(webpkiBundle)
		if err != nil {
			return nil, fmt.Errorf("read webpki bundle: %w", err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates found in webpki bundle %s", webpkiBundle)
		}
		return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
	case TrustNative, "":
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("load native trust store: %w", err)
		}
		return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
	default:
		return nil, fmt.Errorf("unknown TLS trust mode %q", mode)
	}
}
