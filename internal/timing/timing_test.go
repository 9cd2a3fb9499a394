package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhases_TrackAndMerge(t *testing.T) {
	p := NewPhases()
	stop := p.Track("chunk")
	time.Sleep(2 * time.Millisecond)
	stop()
	p.Add("resolve", 3*time.Millisecond)
	p.Add("chunk", time.Millisecond)

	require.Equal(t, []string{"chunk", "resolve"}, p.Names())
	assert.GreaterOrEqual(t, p.Get("chunk"), 3*time.Millisecond)

	other := NewPhases()
	other.Add("resolve", 2*time.Millisecond)
	other.Add("communities", time.Millisecond)
	p.Merge(other)

	ms := p.Milliseconds()
	assert.Equal(t, int64(5), ms["resolve"])
	assert.Equal(t, int64(1), ms["communities"])
	assert.Equal(t, []string{"chunk", "resolve", "communities"}, p.Names())
}
