package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_FirstJoinerIsOwner(t *testing.T) {
	reg := NewRegistry()
	res, err := reg.Join("room-1", "peer-1")
	require.NoError(t, err)
	assert.True(t, res.IsOwner)
	assert.True(t, res.Created)

	res2, err := reg.Join("room-1", "peer-2")
	require.NoError(t, err)
	assert.False(t, res2.IsOwner)
	assert.False(t, res2.Created)

	assert.True(t, reg.IsOwner("room-1", "peer-1"))
	assert.False(t, reg.IsOwner("room-1", "peer-2"))
}

func TestJoin_ConcurrentFirstJoinsExactlyOneOwner(t *testing.T) {
	reg := NewRegistry()
	const n = 50
	results := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := reg.Join("room-1", fmt.Sprintf("peer-%d", i))
			require.NoError(t, err)
			results[i] = res.IsOwner
		}(i)
	}
	wg.Wait()

	owners := 0
	for _, isOwner := range results {
		if isOwner {
			owners++
		}
	}
	assert.Equal(t, 1, owners)
}

func TestOwnership_NeverTransfersOnLeave(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Join("room-1", "peer-1")
	require.NoError(t, err)
	_, err = reg.Join("room-1", "peer-2")
	require.NoError(t, err)

	remaining, empty := reg.Leave("room-1", "peer-1")
	assert.Equal(t, 1, remaining)
	assert.False(t, empty)

	// owner left; room is not ownerless-reassigned (open question 1: no transfer)
	assert.False(t, reg.IsOwner("room-1", "peer-2"))
	r, ok := reg.Get("room-1")
	require.True(t, ok)
	owner, has := r.OwnerID()
	assert.True(t, has)
	assert.Equal(t, "peer-1", owner)
}

func TestLeave_LastPeerEmptiesRoom(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Join("room-1", "peer-1")
	require.NoError(t, err)

	remaining, empty := reg.Leave("room-1", "peer-1")
	assert.Equal(t, 0, remaining)
	assert.True(t, empty)

	reg.Delete("room-1")
	_, ok := reg.Get("room-1")
	assert.False(t, ok)
}

func TestJoin_RejectsAtCapacity(t *testing.T) {
	reg := NewRegistry()
	res, err := reg.Join("room-1", "peer-0")
	require.NoError(t, err)
	res.Room.MaxPeers = 1

	_, err = reg.Join("room-1", "peer-1")
	require.Error(t, err)
	var full *ErrRoomFull
	assert.ErrorAs(t, err, &full)
}
