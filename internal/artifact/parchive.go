package artifact

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"runtime"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
)

// ParchiveRef names a provider archive (".par.gz") instead of a bare
// binary reference. A parchive bundles one binary per target triple
// plus the issuer claims, so one artifact reference serves a
// heterogeneous lattice (spec.md's distilled ArtifactRef only names
// bare component/provider bytes; this supplements that for providers).
type ParchiveRef struct {
	Archive []byte
}

// parchiveTargetPrefix starts the tar entry name convention:
// target/<os>-<arch>/<name>
const parchiveTargetPrefix = "target/"

// ExtractParchiveBinary reads a gzip'd tar parchive and returns the
// provider binary for targetTriple when one is given (used in tests or
// cross-arch staging), and otherwise the binary matching the running
// host's GOOS/GOARCH.
func ExtractParchiveBinary(archive []byte, targetTriple string) ([]byte, error) {
	if targetTriple == "" {
		targetTriple = fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
	}

	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "open parchive gzip stream", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	wantPrefix := parchiveTargetPrefix + targetTriple + "/"
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.Validation, "read parchive tar entry", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if len(hdr.Name) >= len(wantPrefix) && hdr.Name[:len(wantPrefix)] == wantPrefix {
			return io.ReadAll(tr)
		}
	}
	return nil, errkind.New(errkind.Validation, fmt.Sprintf("parchive has no binary for target %s", targetTriple))
}

// ExtractParchiveClaimsJWT returns the raw JWT text stored at
// "claims.jwt" in the archive root, the PAR convention for carrying
// claims alongside per-target binaries rather than embedded in each.
func ExtractParchiveClaimsJWT(archive []byte) (string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return "", errkind.Wrap(errkind.Validation, "open parchive gzip stream", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errkind.Wrap(errkind.Validation, "read parchive tar entry", err)
		}
		if hdr.Typeflag == tar.TypeReg && hdr.Name == "claims.jwt" {
			data, err := io.ReadAll(tr)
			if err != nil {
				return "", errkind.Wrap(errkind.Validation, "read parchive claims", err)
			}
			return string(data), nil
		}
	}
	return "", errkind.New(errkind.Validation, "parchive has no claims.jwt entry")
}

