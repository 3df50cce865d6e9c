package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(o *outbox) []string {
	var out []string
	for {
		f, ok := o.pop()
		if !ok {
			return out
		}
		out = append(out, string(f.data))
	}
}

func TestOutboxFIFO(t *testing.T) {
	o := newOutbox(8)

	require.Nil(t, o.push(outFrame{data: []byte("a"), droppable: true}))
	require.Nil(t, o.push(outFrame{data: []byte("b"), droppable: false}))
	require.Nil(t, o.push(outFrame{data: []byte("c"), droppable: true}))

	assert.Equal(t, []string{"a", "b", "c"}, drain(o))
}

func TestOutboxEvictsOldestDroppable(t *testing.T) {
	o := newOutbox(3)

	require.Nil(t, o.push(outFrame{data: []byte("loc1"), droppable: true}))
	require.Nil(t, o.push(outFrame{data: []byte("chat1"), droppable: false}))
	require.Nil(t, o.push(outFrame{data: []byte("loc2"), droppable: true}))

	// queue is full; loc1 is the oldest droppable frame and must go
	require.Nil(t, o.push(outFrame{data: []byte("chat2"), droppable: false}))

	assert.Equal(t, []string{"chat1", "loc2", "chat2"}, drain(o))
}

func TestOutboxFullOfCritical(t *testing.T) {

	t.Run("droppable push is discarded", func(t *testing.T) {
		o := newOutbox(2)
		require.Nil(t, o.push(outFrame{data: []byte("chat1")}))
		require.Nil(t, o.push(outFrame{data: []byte("chat2")}))

		require.Nil(t, o.push(outFrame{data: []byte("loc"), droppable: true}))
		assert.Equal(t, []string{"chat1", "chat2"}, drain(o))
	})

	t.Run("critical push overflows", func(t *testing.T) {
		o := newOutbox(2)
		require.Nil(t, o.push(outFrame{data: []byte("chat1")}))
		require.Nil(t, o.push(outFrame{data: []byte("chat2")}))

		err := o.push(outFrame{data: []byte("chat3")})
		require.ErrorIs(t, err, ErrOutboxOverflow)
		// nothing already queued is lost
		assert.Equal(t, []string{"chat1", "chat2"}, drain(o))
	})
}

func TestOutboxClosed(t *testing.T) {
	o := newOutbox(8)
	require.Nil(t, o.push(outFrame{data: []byte("a")}))
	o.close()

	assert.True(t, o.isClosed())
	require.Nil(t, o.push(outFrame{data: []byte("late")}))

	// the frame queued before close still drains; the late one was ignored
	assert.Equal(t, []string{"a"}, drain(o))
}

func TestOutboxWakeSignal(t *testing.T) {
	o := newOutbox(8)
	require.Nil(t, o.push(outFrame{data: []byte("a")}))
	require.Nil(t, o.push(outFrame{data: []byte("b")}))

	select {
	case <-o.wake:
	default:
		t.Fatal("push should have signalled the write loop")
	}
	// coalesced: two pushes leave at most one pending signal
	select {
	case <-o.wake:
		t.Fatal("wake signals should coalesce")
	default:
	}
}
