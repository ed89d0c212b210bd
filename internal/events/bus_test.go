package events

import "testing"

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(10)
	var got []int
	bus.Subscribe("ui", func(e Event) {
		got = append(got, e.Percent)
	})

	for _, pct := range []int{10, 40, 70, 100} {
		bus.Publish(Event{UploadID: "a", Percent: pct})
	}

	want := []int{10, 40, 70, 100}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivered %v, want %v", got, want)
		}
	}
}

func TestBusSubscribeIsIdempotent(t *testing.T) {
	bus := NewBus(10)
	count := 0
	bus.Subscribe("ui", func(Event) { count++ })
	bus.Subscribe("ui", func(Event) { count++ })

	bus.Publish(Event{UploadID: "a"})
	if count != 1 {
		t.Fatalf("double subscription delivered %d times, want 1", count)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(10)
	count := 0
	bus.Subscribe("ui", func(Event) { count++ })
	bus.Publish(Event{})
	bus.Unsubscribe("ui")
	bus.Unsubscribe("ui") // unknown/repeated ids are fine
	bus.Publish(Event{})

	if count != 1 {
		t.Fatalf("delivered %d times, want 1", count)
	}
}

func TestBusHandlerMayReadAndUnsubscribe(t *testing.T) {
	bus := NewBus(10)
	var seen []Event
	bus.Subscribe("once", func(e Event) {
		seen = bus.Since(0)
		bus.Unsubscribe("once")
	})

	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})

	if len(seen) != 1 || seen[0].Message != "1" {
		t.Fatalf("handler read %+v, want the event being delivered", seen)
	}
}

func TestBusSinceReturnsIncrement(t *testing.T) {
	bus := NewBus(10)
	bus.Publish(Event{Message: "1"})
	second := bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	got := bus.Since(second.Seq - 1)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Message != "2" || got[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestBusTrimsHistory(t *testing.T) {
	bus := NewBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	got := bus.Since(0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Message != "2" || got[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", got)
	}
}
