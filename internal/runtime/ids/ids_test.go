package ids

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func TestNewCorrelationIDSequentialOrdering(t *testing.T) {
	const total = 100
	ids := make([]string, total)
	for i := 0; i < total; i++ {
		ids[i] = NewCorrelationID()
	}

	for i := 0; i < total; i++ {
		if len(ids[i]) != 26 {
			t.Fatalf("expected ULID length 26, got %d", len(ids[i]))
		}
		if _, err := ulid.Parse(ids[i]); err != nil {
			t.Fatalf("expected valid ULID, got %v", err)
		}
	}

	for i := 1; i < total; i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("expected correlation ids to be strictly increasing, %s >= %s", ids[i-1], ids[i])
		}
	}
}

func TestNewCorrelationIDConcurrentUniqueness(t *testing.T) {
	const goroutines = 10
	const perGoroutine = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := NewCorrelationID()
				mu.Lock()
				if _, ok := seen[id]; ok {
					t.Errorf("duplicate correlation id generated: %s", id)
				} else {
					seen[id] = struct{}{}
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if expected := goroutines * perGoroutine; len(seen) != expected {
		t.Fatalf("expected %d unique ids, got %d", expected, len(seen))
	}
}

func TestNewInstanceID(t *testing.T) {
	a, b := NewInstanceID(), NewInstanceID()
	if a == b {
		t.Fatal("instance ids must differ")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("expected a valid UUID, got %v", err)
	}
}
