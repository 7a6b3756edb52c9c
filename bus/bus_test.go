package bus

import "testing"

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New[int]()
	a := b.Subscribe("a", 4)
	c := b.Subscribe("c", 4)

	b.Publish(1)
	b.Publish(2)

	for _, ch := range []<-chan int{a, c} {
		if got := <-ch; got != 1 {
			t.Errorf("got %d, want 1", got)
		}
		if got := <-ch; got != 2 {
			t.Errorf("got %d, want 2", got)
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := New[int]()
	ch := b.Subscribe("slow", 1)

	b.Publish(1)
	b.Publish(2) // dropped, never blocks

	if got := <-ch; got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	select {
	case v := <-ch:
		t.Errorf("unexpected extra value %d", v)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[string]()
	ch := b.Subscribe("x", 1)
	b.Unsubscribe("x")
	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}
	b.Unsubscribe("x") // idempotent
	b.Publish("ignored")
}

func TestCloseIsFinal(t *testing.T) {
	b := New[int]()
	ch := b.Subscribe("x", 1)
	b.Close()
	if _, ok := <-ch; ok {
		t.Error("channel still open after close")
	}
	b.Publish(1) // no panic
	late := b.Subscribe("late", 1)
	if _, ok := <-late; ok {
		t.Error("late subscription not closed")
	}
}
