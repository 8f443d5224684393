package threads

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func openMemoryStore(t *testing.T, creator ThreadCreator, allowed ...string) *Store {
	t.Helper()
	store, err := Open(context.Background(), Config{
		Driver:    "sqlite",
		DSN:       ":memory:",
		Allowlist: NewAllowlist(allowed),
		Creator:   creator,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLite_ResolveIsIdempotent(t *testing.T) {
	creator := &fakeCreator{ids: []string{"thread_abc", "thread_other"}}
	store := openMemoryStore(t, creator, "42")
	ctx := context.Background()

	first, err := store.Resolve(ctx, "42")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := store.Resolve(ctx, "42")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if again != first {
			t.Fatalf("Resolve() = %q, want %q", again, first)
		}
	}
	if creator.calls != 1 {
		t.Errorf("CreateThread calls = %d, want 1", creator.calls)
	}

	mappings, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(mappings) != 1 || mappings[0].ConversationID != "42" || mappings[0].ThreadID != "thread_abc" {
		t.Fatalf("List() = %+v", mappings)
	}
	if mappings[0].CreatedAt.IsZero() {
		t.Errorf("CreatedAt not parsed")
	}
}

// barrierCreator makes every caller wait until n callers have arrived, so
// all of them miss the lookup before any of them inserts.
type barrierCreator struct {
	wg    sync.WaitGroup
	calls int32
}

func (b *barrierCreator) CreateThread(ctx context.Context) (string, error) {
	n := atomic.AddInt32(&b.calls, 1)
	b.wg.Done()
	b.wg.Wait()
	return fmt.Sprintf("thread_%d", n), nil
}

func TestSQLite_ConcurrentFirstContactConverges(t *testing.T) {
	const callers = 5
	creator := &barrierCreator{}
	creator.wg.Add(callers)
	store := openMemoryStore(t, creator, "42")

	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Resolve(context.Background(), "42")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d got %q, caller 0 got %q", i, results[i], results[0])
		}
	}

	stored, found, err := store.Lookup(context.Background(), "42")
	if err != nil || !found || stored != results[0] {
		t.Fatalf("Lookup() = %q, %v, %v; want %q", stored, found, err, results[0])
	}
}

func TestSQLite_UnauthorizedCreatesNothing(t *testing.T) {
	creator := &fakeCreator{ids: []string{"thread_abc"}}
	store := openMemoryStore(t, creator, "42")

	for _, id := range []string{"99", "", " 4 2 "} {
		_, err := store.Resolve(context.Background(), id)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Resolve(%q) error = %v, want ErrUnauthorized", id, err)
		}
	}
	if creator.calls != 0 {
		t.Fatalf("CreateThread calls = %d, want 0", creator.calls)
	}
	mappings, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(mappings) != 0 {
		t.Fatalf("List() = %+v, want empty", mappings)
	}
}

func TestSQLite_ForgetStartsFreshThread(t *testing.T) {
	creator := &fakeCreator{ids: []string{"thread_1", "thread_2"}}
	store := openMemoryStore(t, creator, "42")
	ctx := context.Background()

	if _, err := store.Resolve(ctx, "42"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	removed, err := store.Forget(ctx, "42")
	if err != nil || !removed {
		t.Fatalf("Forget() = %v, %v", removed, err)
	}
	got, err := store.Resolve(ctx, "42")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "thread_2" {
		t.Fatalf("Resolve() after Forget = %q, want thread_2", got)
	}
}

func TestAllowlistReplace(t *testing.T) {
	a := NewAllowlist([]string{"1", " 2 ", ""})
	if a.Len() != 2 || !a.Allowed("2") || a.Allowed("3") {
		t.Fatalf("unexpected allow-list state")
	}
	a.Replace([]string{"3"})
	if a.Allowed("1") || !a.Allowed("3") {
		t.Fatalf("Replace did not swap ids")
	}
	var nilList *Allowlist
	if nilList.Allowed("1") || nilList.Len() != 0 {
		t.Fatalf("nil allow-list should deny everything")
	}
}
