package artifact

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestParchive(t *testing.T, claimsJWT string, targets map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if claimsJWT != "" {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "claims.jwt", Size: int64(len(claimsJWT)), Mode: 0o644}))
		_, err := tw.Write([]byte(claimsJWT))
		require.NoError(t, err)
	}
	for triple, data := range targets {
		name := fmt.Sprintf("target/%s/provider", triple)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(data)), Mode: 0o755}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractParchiveBinaryForRunningTarget(t *testing.T) {
	triple := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
	archive := buildTestParchive(t, "header.payload.sig", map[string][]byte{
		triple:        []byte("native-binary"),
		"other-other": []byte("other-binary"),
	})

	data, err := ExtractParchiveBinary(archive, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("native-binary"), data)
}

func TestExtractParchiveBinaryExplicitTarget(t *testing.T) {
	archive := buildTestParchive(t, "", map[string][]byte{
		"linux-arm64": []byte("arm-binary"),
	})

	data, err := ExtractParchiveBinary(archive, "linux-arm64")
	require.NoError(t, err)
	assert.Equal(t, []byte("arm-binary"), data)
}

func TestExtractParchiveBinaryMissingTarget(t *testing.T) {
	archive := buildTestParchive(t, "", map[string][]byte{
		"linux-arm64": []byte("arm-binary"),
	})
	_, err := ExtractParchiveBinary(archive, "windows-amd64")
	require.Error(t, err)
}

func TestExtractParchiveClaimsJWT(t *testing.T) {
	archive := buildTestParchive(t, "abc.def.ghi", map[string][]byte{
		"linux-amd64": []byte("bin"),
	})
	jwt, err := ExtractParchiveClaimsJWT(archive)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", jwt)
}
