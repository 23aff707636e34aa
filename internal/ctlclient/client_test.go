package ctlclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wasmcloud/wasmcloud-host/internal/ctlplane"
)

func TestNewClientAppliesDefaults(t *testing.T) {
	c := NewClient(nil, "default", "", 0)
	assert.Equal(t, ctlplane.DefaultTopicPrefix+".default", c.prefix)
	assert.Equal(t, DefaultRequestTimeout, c.timeout)
}

func TestNewClientHonorsExplicitPrefixAndTimeout(t *testing.T) {
	c := NewClient(nil, "lattice-a", "custom.ctl", 5*time.Second)
	assert.Equal(t, "custom.ctl.lattice-a", c.prefix)
	assert.Equal(t, 5*time.Second, c.timeout)
}

func TestHostSubjectMatchesServerBinding(t *testing.T) {
	c := NewClient(nil, "default", "", 0)
	assert.Equal(t, ctlplane.DefaultTopicPrefix+".default.host.Nhost.scale", c.hostSubject("Nhost", "scale"))
}
