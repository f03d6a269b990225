package egress

import (
	"sync"
	"testing"

	"github.com/duetcast/controller/internal/models"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Lookup("EG_1"); ok {
		t.Fatal("lookup on empty registry should miss")
	}

	r.Insert(&models.RecordingSession{EgressID: "EG_1", RoomName: "debate-42"})
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	if !r.ActiveForRoom("debate-42") {
		t.Fatal("ActiveForRoom should see the session")
	}
	if r.ActiveForRoom("other-room") {
		t.Fatal("ActiveForRoom matched the wrong room")
	}

	s, ok := r.Lookup("EG_1")
	if !ok || s.RoomName != "debate-42" {
		t.Fatalf("Lookup = %+v, %v", s, ok)
	}

	s, ok = r.Evict("EG_1")
	if !ok || s == nil {
		t.Fatal("first evict should win")
	}
	if _, ok = r.Evict("EG_1"); ok {
		t.Fatal("second evict should report the key already gone")
	}
	if r.Len() != 0 {
		t.Fatalf("Len after evict = %d, want 0", r.Len())
	}
}

func TestRegistryConcurrentEvictSingleWinner(t *testing.T) {
	r := NewRegistry()
	r.Insert(&models.RecordingSession{EgressID: "EG_race"})

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Evict("EG_race"); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("evict winners = %d, want exactly 1", won)
	}
}
