package emitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaekop/ContextLens/internal/event"
)

func TestPublishReachesAllSessionSubscribers(t *testing.T) {
	h := NewHub()
	chA1, cancelA1 := h.Subscribe("a")
	defer cancelA1()
	chA2, cancelA2 := h.Subscribe("a")
	defer cancelA2()
	chB, cancelB := h.Subscribe("b")
	defer cancelB()

	h.Publish(event.NewErrorEvent("a", event.CodeSessionNotFound, "unknown session"))

	for _, ch := range []<-chan event.Event{chA1, chA2} {
		ev := <-ch
		assert.Equal(t, event.TypeError, ev.Type)
		assert.Equal(t, "a", ev.SessionID)
	}
	assert.Empty(t, chB)
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("a")
	defer cancel()

	for i := 0; i < subBuffer+5; i++ {
		h.Publish(event.NewToolEvent("a", "practice_prompt", "restate it", time.Now()))
	}

	assert.Len(t, ch, subBuffer)
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("a")

	cancel()
	cancel()

	h.Publish(event.NewErrorEvent("a", event.CodePersistFailed, "after cancel"))

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, h.Subscribers("a"))
}

func TestSubscribersCountsPerSession(t *testing.T) {
	h := NewHub()
	_, cancel1 := h.Subscribe("a")
	defer cancel1()
	_, cancel2 := h.Subscribe("a")

	require.Equal(t, 2, h.Subscribers("a"))
	cancel2()
	require.Equal(t, 1, h.Subscribers("a"))
	require.Zero(t, h.Subscribers("missing"))
}
