package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/livingapps"
)

// fakeSource serves canned records per app id and counts fetches.
type fakeSource struct {
	mu      sync.Mutex
	records map[string][]livingapps.Record
	errs    map[string]error
	calls   int
}

func (f *fakeSource) Records(ctx context.Context, appID string) ([]livingapps.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[appID]; err != nil {
		return nil, err
	}
	return f.records[appID], nil
}

func testAppIDs() map[catalog.Key]string {
	ids := make(map[catalog.Key]string, len(catalog.Keys))
	for _, k := range catalog.Keys {
		ids[k] = "app-" + string(k)
	}
	return ids
}

func TestLoadFetchesAllCollections(t *testing.T) {
	src := &fakeSource{records: map[string][]livingapps.Record{
		"app-kurse":  {{ID: "c1", Fields: map[string]any{"titel": "Yoga"}}},
		"app-raeume": {{ID: "r1", Fields: map[string]any{"raumname": "Saal 2"}}},
	}}
	l := New(src, testAppIDs(), nil)

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap, state, loadErr := l.Snapshot()
	if state != StateReady || loadErr != nil {
		t.Fatalf("state = %s, err = %v, want ready", state, loadErr)
	}
	if src.calls != len(catalog.Keys) {
		t.Errorf("source called %d times, want %d", src.calls, len(catalog.Keys))
	}
	if len(snap.Records(catalog.Courses)) != 1 {
		t.Errorf("courses = %v", snap.Records(catalog.Courses))
	}
	if snap.Tables[catalog.Rooms]["r1"].ID != "r1" {
		t.Error("lookup table not built for rooms")
	}
	if got := snap.Records(catalog.Participants); len(got) != 0 {
		t.Errorf("participants = %v, want empty", got)
	}
}

func TestLoadFailureKeepsPreviousSnapshot(t *testing.T) {
	src := &fakeSource{records: map[string][]livingapps.Record{
		"app-kurse": {{ID: "c1", Fields: map[string]any{"titel": "Yoga"}}},
	}}
	l := New(src, testAppIDs(), nil)
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("initial Load: %v", err)
	}

	src.mu.Lock()
	src.errs = map[string]error{"app-teilnehmer": fmt.Errorf("remote down")}
	src.mu.Unlock()

	if err := l.Load(context.Background()); err == nil {
		t.Fatal("Load succeeded, want partial-failure error")
	}

	snap, state, loadErr := l.Snapshot()
	if snap == nil || len(snap.Records(catalog.Courses)) != 1 {
		t.Fatal("previous snapshot discarded on failed reload")
	}
	if state != StateStale {
		t.Errorf("state = %s, want stale", state)
	}
	if loadErr == nil {
		t.Error("lastErr not recorded")
	}
}

func TestLoadFailureWithoutSnapshotStaysEmpty(t *testing.T) {
	src := &fakeSource{errs: map[string]error{"app-kurse": fmt.Errorf("remote down")}}
	l := New(src, testAppIDs(), nil)

	if err := l.Load(context.Background()); err == nil {
		t.Fatal("Load succeeded, want error")
	}
	snap, state, _ := l.Snapshot()
	if snap != nil || state != StateEmpty {
		t.Errorf("snap = %v, state = %s, want nil/empty", snap, state)
	}
}

func TestMarkStaleRequiresSnapshot(t *testing.T) {
	l := New(&fakeSource{}, testAppIDs(), nil)

	l.MarkStale()
	if l.IsStale() {
		t.Error("empty loader marked stale")
	}

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	l.MarkStale()
	if !l.IsStale() {
		t.Error("loaded snapshot not marked stale")
	}
}

// fakeCache is an in-memory SnapshotCache.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	at   map[string]time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}, at: map[string]time.Time{}}
}

func (c *fakeCache) SaveSnapshot(collection string, records []byte, fetchedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[collection] = records
	c.at[collection] = fetchedAt
	return nil
}

func (c *fakeCache) LoadSnapshot(collection string) ([]byte, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[collection]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("no snapshot for %s", collection)
	}
	return data, c.at[collection], nil
}

func TestLoadPersistsSnapshot(t *testing.T) {
	src := &fakeSource{records: map[string][]livingapps.Record{
		"app-kurse": {{ID: "c1", Fields: map[string]any{"titel": "Yoga"}}},
	}}
	cache := newFakeCache()
	l := New(src, testAppIDs(), cache)

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	data, _, err := cache.LoadSnapshot(string(catalog.Courses))
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	var records []livingapps.Record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("unmarshalling cached records: %v", err)
	}
	if len(records) != 1 || records[0].ID != "c1" {
		t.Errorf("cached records = %v", records)
	}
}

func TestRestoreFromCache(t *testing.T) {
	src := &fakeSource{records: map[string][]livingapps.Record{
		"app-kurse": {{ID: "c1", Fields: map[string]any{"titel": "Yoga"}}},
	}}
	cache := newFakeCache()
	warm := New(src, testAppIDs(), cache)
	if err := warm.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Fresh loader, remote unreachable.
	down := &fakeSource{errs: map[string]error{"app-kurse": fmt.Errorf("remote down")}}
	l := New(down, testAppIDs(), cache)
	if err := l.RestoreFromCache(); err != nil {
		t.Fatalf("RestoreFromCache: %v", err)
	}

	snap, state, _ := l.Snapshot()
	if state != StateStale {
		t.Errorf("state = %s, want stale", state)
	}
	if !snap.FromCache {
		t.Error("FromCache not set")
	}
	if len(snap.Records(catalog.Courses)) != 1 {
		t.Errorf("restored courses = %v", snap.Records(catalog.Courses))
	}
	if snap.Tables[catalog.Courses]["c1"].ID != "c1" {
		t.Error("lookup tables not rebuilt from cache")
	}
}

func TestRestoreFromCacheIncomplete(t *testing.T) {
	cache := newFakeCache()
	cache.SaveSnapshot(string(catalog.Courses), []byte(`[]`), time.Now())

	l := New(&fakeSource{}, testAppIDs(), cache)
	if err := l.RestoreFromCache(); err == nil {
		t.Fatal("RestoreFromCache succeeded with missing collections")
	}
	if snap, _, _ := l.Snapshot(); snap != nil {
		t.Error("partial cache installed as snapshot")
	}
}

func TestRefresherReloadsWhenStale(t *testing.T) {
	src := &fakeSource{}
	l := New(src, testAppIDs(), nil)
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := NewRefresher(l, 10*time.Millisecond, 0)

	if did, _ := r.RunOnce(context.Background()); did {
		t.Error("refresher reloaded a ready snapshot")
	}

	l.MarkStale()
	did, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !did {
		t.Fatal("refresher skipped a stale snapshot")
	}
	if _, state, _ := l.Snapshot(); state != StateReady {
		t.Errorf("state = %s, want ready after refresh", state)
	}
}

func TestRefresherMaxAge(t *testing.T) {
	src := &fakeSource{}
	l := New(src, testAppIDs(), nil)
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Age the snapshot past maxAge.
	l.mu.Lock()
	l.snap.FetchedAt = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	r := NewRefresher(l, 10*time.Millisecond, time.Minute)
	did, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !did {
		t.Error("refresher skipped an aged snapshot")
	}
}
