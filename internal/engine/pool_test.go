package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/testutil"
)

func newTestPool(softMax int) *Pool {
	return NewPool(softMax, testutil.Discard())
}

func TestPool_AcquireStartsWorker(t *testing.T) {
	pl := newTestPool(2)
	defer pl.shutdown()

	p := pl.acquire()
	require.NotNil(t, p)
	assert.Equal(t, 0, p.ID())
	assert.Equal(t, "process-1", p.Name())

	stats := pl.Stats()
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, 2, stats.SoftMax)
}

func TestPool_ReleaseIsLIFO(t *testing.T) {
	pl := newTestPool(4)
	defer pl.shutdown()

	a := pl.acquire()
	b := pl.acquire()
	require.NotSame(t, a, b)

	pl.release(a)
	pl.release(b)

	assert.Same(t, b, pl.acquire(), "most recently released process is reused first")
	assert.Same(t, a, pl.acquire())
	assert.Equal(t, 2, pl.Stats().Created)
}

func TestPool_DefaultSoftMax(t *testing.T) {
	pl := newTestPool(0)
	defer pl.shutdown()
	assert.Equal(t, DefaultPoolSoftMax, pl.Stats().SoftMax)
}

func TestPool_ShutdownReleasesIdle(t *testing.T) {
	pl := newTestPool(1)

	busy := pl.acquire()
	idle := pl.acquire()
	pl.release(idle)

	pl.shutdown()
	stats := pl.Stats()
	assert.Equal(t, 1, stats.Live, "busy worker survives until it is released")
	assert.Equal(t, 0, stats.Idle)

	pl.release(busy)
	assert.Equal(t, 0, pl.Stats().Live)
	pl.shutdown()
}

func TestPool_AcquireAfterShutdownPanics(t *testing.T) {
	pl := newTestPool(1)
	pl.shutdown()

	assert.PanicsWithError(t, "engine.acquire: pool is shut down", func() {
		pl.acquire()
	})
	assert.Equal(t, 0, pl.Stats().Created, "no worker is started")
}

func TestFlag_String(t *testing.T) {
	assert.Equal(t, "IDLE", Flag(0).String())
	assert.Equal(t, "ACTIVE", FlagActive.String())
	assert.Equal(t, "COND_WAIT|TERMINATE", (FlagCondWait | FlagTerminate).String())
	assert.Equal(t, "SCHED_WAIT", FlagSchedWait.String())
}
