package store

import (
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/stitchboard/widget"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}
	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
}

func TestMemoryStore_UpdateOverwrites(t *testing.T) {
	store := NewMemoryStore()

	store.Update(SourceResult{Name: "metrics", State: "exhausted"})
	store.Update(SourceResult{Name: "metrics", State: "succeeded", Requests: 3})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].State != "succeeded" || all[0].Requests != 3 {
		t.Errorf("GetAll()[0] = %+v, want latest update", all[0])
	}
}

func TestMemoryStore_GetAllSortedByName(t *testing.T) {
	store := NewMemoryStore()
	store.Update(SourceResult{Name: "metrics"})
	store.Update(SourceResult{Name: "datasources"})
	store.Update(SourceResult{Name: "archive"})

	all := store.GetAll()
	names := []string{all[0].Name, all[1].Name, all[2].Name}
	want := []string{"archive", "datasources", "metrics"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("GetAll() names = %v, want %v", names, want)
		}
	}
}

func TestMemoryStore_Widget(t *testing.T) {
	store := NewMemoryStore()
	store.Update(SourceResult{
		Name: "metrics",
		Widgets: []widget.Widget{
			{ID: widget.EntityCountID, Kind: widget.KindCounter, Value: 12},
			{ID: widget.StitchDistID, Kind: widget.KindBar, Bars: []widget.BarPoint{{X: "a", Y: 1}}},
		},
	})

	w, ok := store.Widget(widget.StitchDistID)
	if !ok {
		t.Fatal("Widget() not found")
	}
	if w.Kind != widget.KindBar || len(w.Bars) != 1 {
		t.Errorf("Widget() = %+v", w)
	}

	if _, ok := store.Widget("missing"); ok {
		t.Error("Widget(missing) should not be found")
	}
}

func TestMemoryStore_WidgetGoneAfterFailedPoll(t *testing.T) {
	store := NewMemoryStore()
	store.Update(SourceResult{Name: "metrics", Widgets: []widget.Widget{{ID: "x"}}})
	store.Update(SourceResult{Name: "metrics", State: "exhausted"})

	if _, ok := store.Widget("x"); ok {
		t.Error("Widget(x) should be unavailable after a failed poll")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore()
	ch1 := store.Subscribe()
	ch2 := store.Subscribe()

	go store.Update(SourceResult{Name: "metrics"})

	received := 0
	timeout := time.After(time.Second)
	for received < 2 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-timeout:
			t.Fatalf("only received %d/2 updates", received)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()
	store.Unsubscribe(ch)
	store.Unsubscribe(ch) // second call is a no-op

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			store.Update(SourceResult{Name: "metrics"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Update() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Update(SourceResult{Name: "metrics", Widgets: []widget.Widget{{ID: "x"}}})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.GetAll()
				_, _ = store.Widget("x")
			}
		}()
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}
	wg.Wait()
}
