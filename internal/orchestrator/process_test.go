package orchestrator

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contextcleaner/contextcleaner/internal/state"
)

func TestDecide_AbsentRecordStartsFresh(t *testing.T) {
	got := Decide(context.Background(), state.ServiceRecord{}, false, func(context.Context, state.ServiceRecord) bool { return true })
	assert.Equal(t, DispositionStart, got)
}

func TestDecide_DeadProcessStartsFresh(t *testing.T) {
	rec := state.ServiceRecord{Name: "x", PID: deadPID()}
	got := Decide(context.Background(), rec, true, func(context.Context, state.ServiceRecord) bool { return true })
	assert.Equal(t, DispositionStart, got)
}

func TestDecide_AliveAndResponsiveAdopts(t *testing.T) {
	rec := state.ServiceRecord{Name: "x", PID: os.Getpid()}
	got := Decide(context.Background(), rec, true, func(context.Context, state.ServiceRecord) bool { return true })
	assert.Equal(t, DispositionAdopt, got)
}

func TestDecide_AliveButUnresponsiveRestarts(t *testing.T) {
	rec := state.ServiceRecord{Name: "x", PID: os.Getpid()}
	got := Decide(context.Background(), rec, true, func(context.Context, state.ServiceRecord) bool { return false })
	assert.Equal(t, DispositionRestart, got)
}

// deadPID returns a PID almost certainly not in use: the current PID
// plus a large odd offset, which is not guaranteed unused on every CI
// box but is stable enough for this unit test's purpose of exercising
// the "process absent" branch.
func deadPID() int {
	return os.Getpid() + 9999991
}
