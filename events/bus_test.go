package events

import "testing"

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int
	b.Subscribe(KindSlideReady, func(Event) { order = append(order, 1) })
	b.Subscribe(KindSlideReady, func(Event) { order = append(order, 2) })
	b.Subscribe(KindSlideReady, func(Event) { order = append(order, 3) })

	b.Emit(Event{Kind: KindSlideReady, EntityID: "s1"})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected in-order delivery [1 2 3], got %v", order)
	}
}

func TestBusOnlyDeliversMatchingKind(t *testing.T) {
	b := New()
	got := 0
	b.Subscribe(KindSlideReady, func(Event) { got++ })
	b.Emit(Event{Kind: KindTilesReady})
	if got != 0 {
		t.Fatalf("listener for slide.ready must not fire for tiles.ready")
	}
}

type fakeRelay struct{ events []Event }

func (f *fakeRelay) Relay(ev Event) { f.events = append(f.events, ev) }

func TestBusRelaysEveryEvent(t *testing.T) {
	b := New()
	relay := &fakeRelay{}
	b.AddRelay(relay)
	b.Emit(Event{Kind: KindSlideImport, EntityID: "s1"})
	b.Emit(Event{Kind: KindTilesReady, EntityID: "s1"})
	if len(relay.events) != 2 {
		t.Fatalf("expected relay to see both events, got %d", len(relay.events))
	}
}

func TestBusListenerPanicDoesNotStopOtherListeners(t *testing.T) {
	b := New()
	second := false
	b.Subscribe(KindSlideReady, func(Event) { panic("boom") })
	b.Subscribe(KindSlideReady, func(Event) { second = true })
	b.Emit(Event{Kind: KindSlideReady})
	if !second {
		t.Fatalf("a panicking listener must not prevent delivery to later listeners")
	}
}
