package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

func TestHostDataMarshalRoundTrip(t *testing.T) {
	record := types.ProviderRecord{ID: "provider-1", State: types.ProviderStarting}
	hd := BuildHostData("host-1", "nats://127.0.0.1:4222", false, record, "default", map[string]string{"k": "v"}, "XKEYPUB")

	data, err := hd.Marshal()
	require.NoError(t, err)

	var decoded HostData
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "host-1", decoded.HostID)
	assert.Equal(t, "provider-1", decoded.ProviderID)
	assert.Equal(t, "default", decoded.LinkName)
	assert.Equal(t, "v", decoded.Config["k"])
	assert.Equal(t, "XKEYPUB", decoded.HostXKey)
}
