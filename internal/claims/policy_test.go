package claims

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyGateDisabledAlwaysPermits(t *testing.T) {
	gate := NewPolicyGate(nil, "", time.Second)
	assert.False(t, gate.Enabled())

	decision := gate.Check(context.Background(), ActionPermitLoad, "req-1", nil, "host-1", nil)
	assert.True(t, decision.Permitted)
	assert.NoError(t, decision.ToError())
}

func TestDecisionToErrorOnDeny(t *testing.T) {
	d := Decision{Permitted: false, Message: "blocked by policy"}
	err := d.ToError()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "blocked by policy")
}

func TestDecisionToErrorDefaultMessage(t *testing.T) {
	d := Decision{Permitted: false}
	err := d.ToError()
	assert.EqualError(t, err, "denied by policy")
}
