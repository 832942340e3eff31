package broadcast

import "testing"

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	// No goroutine consumes h.broadcast; Broadcast must still return
	// immediately once the buffer fills, rather than blocking the caller.
	for i := 0; i < 300; i++ {
		h.Broadcast("t1", map[string]any{"i": i})
	}
}
