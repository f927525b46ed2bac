package event

import "testing"

func TestBusDeliversNextTickInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e EmitterEmptied) { got = append(got, "empty:"+e.Name) })
	Subscribe(b, func(e ConfigWarning) { got = append(got, "warn:"+e.Name) })

	Emit(b, EmitterEmptied{Name: "a"})
	Emit(b, ConfigWarning{Name: "b"})
	Emit(b, EmitterEmptied{Name: "c"})
	if n := b.DispatchAll(); n != 0 || len(got) != 0 {
		t.Fatal("events delivered in the tick they were emitted")
	}

	b.SwapBuffers()
	if n := b.DispatchAll(); n != 3 {
		t.Fatalf("dispatched %d", n)
	}
	want := []string{"empty:a", "warn:b", "empty:c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestHandlerEmitsForNextTick(t *testing.T) {
	b := NewBus()
	left := 0
	Subscribe(b, func(e ObserverJoined) { Emit(b, ObserverLeft{SessionID: e.SessionID}) })
	Subscribe(b, func(ObserverLeft) { left++ })

	Emit(b, ObserverJoined{SessionID: 1})
	b.SwapBuffers()
	b.DispatchAll()
	if left != 0 || b.Pending() != 1 {
		t.Fatalf("left=%d pending=%d", left, b.Pending())
	}
	b.SwapBuffers()
	b.DispatchAll()
	if left != 1 {
		t.Fatal("chained event lost")
	}
}
