package ctlplane

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOkMarshalsData(t *testing.T) {
	resp := Ok(map[string]int{"a": 1})
	assert.True(t, resp.Success)

	raw := resp.Marshal()
	var decoded Response
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.Success)

	var data map[string]int
	require.NoError(t, json.Unmarshal(decoded.Data, &data))
	assert.Equal(t, 1, data["a"])
}

func TestFailCarriesMessage(t *testing.T) {
	resp := Fail("denied by policy")
	assert.False(t, resp.Success)
	assert.Equal(t, "denied by policy", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestOkWithNilData(t *testing.T) {
	resp := Ok(nil)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Data)
}
