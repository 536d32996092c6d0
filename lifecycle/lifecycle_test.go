package lifecycle

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/magiconair/properties/assert"
)

type fakeComponent struct {
	stopped int32
}

func (f *fakeComponent) Stop() {
	atomic.StoreInt32(&f.stopped, 1)
}

func TestShutdownStopsAndWaits(t *testing.T) {
	s := NewSupervisor()
	comp := &fakeComponent{}

	ran := make(chan struct{})
	s.Track(comp, func() {
		for atomic.LoadInt32(&comp.stopped) == 0 {
			time.Sleep(time.Millisecond)
		}
		close(ran)
	})

	s.Shutdown()
	select {
	case <-ran:
	default:
		t.Fatal("expected goroutine to have completed by the time Shutdown returned")
	}
	assert.Equal(t, atomic.LoadInt32(&comp.stopped), int32(1))
}
