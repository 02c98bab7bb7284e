package relay

import (
	"testing"
	"time"

	"camstream/rtsp"
)

func frameAt(i int) rtsp.Frame {
	return rtsp.Frame{Data: []byte{byte(i)}, Time: time.Duration(i) * time.Millisecond}
}

// A producer overrunning a blocked consumer must never block and the
// consumer must see at most capacity frames, the newest ones.
func TestPublishDropsOldestWhenFull(t *testing.T) {
	capacity := 5
	r := NewRelay(capacity)
	ch, cancel := r.Subscribe()
	defer cancel()

	total := capacity + 10
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			r.Publish(frameAt(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a slow consumer")
	}

	var received []rtsp.Frame
	for {
		select {
		case f := <-ch:
			received = append(received, f)
		default:
			goto drained
		}
	}
drained:
	if len(received) > capacity {
		t.Errorf("Consumer observed %d buffered frames, capacity is %d", len(received), capacity)
	}
	// The newest frame survives the overflow
	last := received[len(received)-1]
	if last.Data[0] != byte(total-1) {
		t.Errorf("Expected newest frame %d to survive, got %d", total-1, last.Data[0])
	}
}

func TestConsumerResumesAfterOverflow(t *testing.T) {
	r := NewRelay(3)
	ch, cancel := r.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		r.Publish(frameAt(i))
	}
	// Drain what survived the overflow
	for len(ch) > 0 {
		<-ch
	}

	r.Publish(frameAt(42))
	select {
	case f := <-ch:
		if f.Data[0] != 42 {
			t.Errorf("Expected frame 42 after resuming, got %d", f.Data[0])
		}
	case <-time.After(time.Second):
		t.Fatal("Consumer did not receive a frame after draining")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	r := NewRelay(10)
	ch1, cancel1 := r.Subscribe()
	ch2, cancel2 := r.Subscribe()
	defer cancel2()

	if r.SubscriberCount() != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", r.SubscriberCount())
	}

	r.Publish(frameAt(1))
	if f := <-ch1; f.Data[0] != 1 {
		t.Errorf("Subscriber 1 got wrong frame")
	}
	if f := <-ch2; f.Data[0] != 1 {
		t.Errorf("Subscriber 2 got wrong frame")
	}

	cancel1()
	if r.SubscriberCount() != 1 {
		t.Errorf("Expected 1 subscriber after cancel, got %d", r.SubscriberCount())
	}
	if _, ok := <-ch1; ok {
		t.Errorf("Expected cancelled channel to be closed")
	}

	// Publishing after a cancel must still reach the remaining subscriber
	r.Publish(frameAt(2))
	if f := <-ch2; f.Data[0] != 2 {
		t.Errorf("Remaining subscriber missed frame after cancel")
	}
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	r := NewRelay(5)
	ch, _ := r.Subscribe()

	r.Close()
	r.Close()

	if _, ok := <-ch; ok {
		t.Errorf("Expected subscriber channel closed after relay Close")
	}

	// Must not panic
	r.Publish(frameAt(1))

	ch2, cancel := r.Subscribe()
	defer cancel()
	if _, ok := <-ch2; ok {
		t.Errorf("Expected subscription on closed relay to be closed immediately")
	}
}
