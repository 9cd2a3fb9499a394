package graph

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_CapsFailures(t *testing.T) {
	r := NewReport("g", "sync")
	for i := range MaxFailures + 5 {
		r.Fail("embed", fmt.Sprint(i), errors.New("boom"))
	}
	snap := r.Snapshot()
	assert.Len(t, snap.Failures, MaxFailures)
	assert.Equal(t, 5, snap.DroppedFailures)
	assert.Equal(t, MaxFailures+5, r.Failures())
}

func TestReport_CountersAndFinish(t *testing.T) {
	r := NewReport("g", "cleanup")
	require.NotEmpty(t, r.RequestID())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Inc(CounterOrphans, 1)
		}()
	}
	wg.Wait()
	stop := r.Track("cleanup")
	stop()

	r.Finish(errors.New("index missing"))
	snap := r.Snapshot()
	assert.Equal(t, int64(10), snap.Counters[CounterOrphans])
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "index missing", snap.Error)
	require.NotNil(t, snap.FinishedAt)
	assert.Contains(t, snap.PhasesMs, "cleanup")

	// snapshots are copies
	snap.Counters[CounterOrphans] = 0
	assert.Equal(t, int64(10), r.Count(CounterOrphans))
}

func TestReport_NilIsSafe(t *testing.T) {
	var r *Report
	r.Inc(CounterDocuments, 1)
	r.Fail("chunk", "doc", errors.New("x"))
	r.Track("documents")()
	r.Finish(nil)
	assert.Equal(t, int64(0), r.Count(CounterDocuments))
	assert.Equal(t, 0, r.Failures())
	assert.Empty(t, r.RequestID())
}

func TestLayerBarrier(t *testing.T) {
	empty := NewLayerBarrier(nil)
	select {
	case <-empty.Done():
	default:
		t.Fatal("empty barrier should be done")
	}

	b := NewLayerBarrier([]string{"c1", "c2"})
	b.Mark("c1")
	b.Mark("c1")
	b.Mark("unknown")
	assert.Equal(t, 1, b.Remaining())

	go b.Mark("c2")
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("barrier not released")
	}
	assert.Equal(t, 0, b.Remaining())
}
