package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolatePath_EndpointsAndSpacing(t *testing.T) {
	start := Point{Lat: 10.0, Lng: 106.0}
	end := Point{Lat: 10.1, Lng: 106.1}

	path := InterpolatePath(start, end, 4)
	require.Len(t, path, 5)
	assert.Equal(t, start, path[0])
	assert.Equal(t, end, path[4])
	assert.InDelta(t, 10.05, path[2].Lat, 1e-12)
	assert.InDelta(t, 106.05, path[2].Lng, 1e-12)
}

func TestInterpolatePath_MinimumOneSegment(t *testing.T) {
	path := InterpolatePath(Point{0, 0}, Point{1, 1}, 0)
	require.Len(t, path, 2)
}

func TestAdvanceAlongPath_PartialSegment(t *testing.T) {
	path := InterpolatePath(Point{0, 0}, Point{1, 0}, 10)
	seg := Distance(path[0], path[1])

	pos, reached := AdvanceAlongPath(path, path[0], seg/2)
	assert.False(t, reached)
	assert.InDelta(t, seg/2, Distance(path[0], pos), 1e-6)
}

func TestAdvanceAlongPath_CrossesSegments(t *testing.T) {
	path := InterpolatePath(Point{0, 0}, Point{1, 0}, 10)
	seg := Distance(path[0], path[1])

	pos, reached := AdvanceAlongPath(path, path[0], 2.5*seg)
	assert.False(t, reached)
	assert.InDelta(t, 2.5*seg, Distance(path[0], pos), 1e-6)
}

func TestAdvanceAlongPath_ClampsAtEnd(t *testing.T) {
	path := InterpolatePath(Point{0, 0}, Point{0.1, 0.1}, 5)
	total := Distance(path[0], path[len(path)-1])

	pos, reached := AdvanceAlongPath(path, path[0], total*10)
	assert.True(t, reached)
	assert.Equal(t, path[len(path)-1], pos)
}

func TestAdvanceAlongPath_EmptyAndSinglePoint(t *testing.T) {
	cur := Point{1, 2}
	pos, reached := AdvanceAlongPath(nil, cur, 1)
	assert.True(t, reached)
	assert.Equal(t, cur, pos)

	only := []Point{{3, 4}}
	pos, reached = AdvanceAlongPath(only, only[0], 0.1)
	assert.True(t, reached)
	assert.Equal(t, only[0], pos)
}

func TestAdvanceAlongPath_DegeneratePath(t *testing.T) {
	p := Point{10, 106}
	path := InterpolatePath(p, p, 20)
	pos, reached := AdvanceAlongPath(path, p, 0.1)
	assert.True(t, reached)
	assert.Equal(t, p, pos)
}

func TestAdvanceAlongPath_TerminatesAndNeverMovesBackward(t *testing.T) {
	start := Point{Lat: 10.0, Lng: 106.0}
	end := Point{Lat: 10.1, Lng: 106.1}
	path := InterpolatePath(start, end, 20)
	const step = 0.1 // km

	pos := start
	prevRemaining := Distance(start, end)
	for i := 0; ; i++ {
		require.Less(t, i, 10000, "path did not terminate")
		next, reached := AdvanceAlongPath(path, pos, step)
		remaining := Distance(next, end)
		assert.LessOrEqual(t, remaining, prevRemaining+1e-9, "moved backward at step %d", i)
		assert.LessOrEqual(t, Distance(pos, next), step+1e-6, "overshot the per-step budget at step %d", i)
		prevRemaining = remaining
		pos = next
		if reached {
			assert.Equal(t, end, pos)
			return
		}
	}
}

func TestClosestIndex(t *testing.T) {
	path := InterpolatePath(Point{0, 0}, Point{1, 0}, 10)
	assert.Equal(t, -1, ClosestIndex(nil, Point{}))
	assert.Equal(t, 0, ClosestIndex(path, Point{-1, 0}))
	assert.Equal(t, 10, ClosestIndex(path, Point{2, 0}))
	assert.Equal(t, 3, ClosestIndex(path, Point{0.31, 0}))
}
