package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/state"
)

func openTestRegistry(t *testing.T) *state.Registry {
	t.Helper()
	s, err := state.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return state.NewRegistry(s)
}

func TestReservePort_PicksLowestFreeInRange(t *testing.T) {
	reg := openTestRegistry(t)
	old := probeBind
	probeBind = func(int) bool { return true }
	defer func() { probeBind = old }()

	rec, err := ReservePort(reg, "svc-a", 1, "", PortRange{Low: 9000, High: 9010})
	require.NoError(t, err)
	assert.Equal(t, 9000, rec.Port)
}

func TestReservePort_SkipsPortsHeldByAnotherService(t *testing.T) {
	reg := openTestRegistry(t)
	old := probeBind
	probeBind = func(int) bool { return true }
	defer func() { probeBind = old }()

	require.NoError(t, reg.Publish(state.ServiceRecord{Name: "svc-a", Port: 9000}))

	rec, err := ReservePort(reg, "svc-b", 2, "", PortRange{Low: 9000, High: 9010})
	require.NoError(t, err)
	assert.Equal(t, 9001, rec.Port)
}

func TestReservePort_SkipsPortsBoundOnHost(t *testing.T) {
	reg := openTestRegistry(t)
	old := probeBind
	probeBind = func(p int) bool { return p != 9000 }
	defer func() { probeBind = old }()

	rec, err := ReservePort(reg, "svc-a", 1, "", PortRange{Low: 9000, High: 9010})
	require.NoError(t, err)
	assert.Equal(t, 9001, rec.Port)
}

func TestReservePort_ErrorsWhenRangeExhausted(t *testing.T) {
	reg := openTestRegistry(t)
	old := probeBind
	probeBind = func(int) bool { return false }
	defer func() { probeBind = old }()

	_, err := ReservePort(reg, "svc-a", 1, "", PortRange{Low: 9000, High: 9002})
	assert.Error(t, err)
}
