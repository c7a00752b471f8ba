// Package dashboard holds the in-memory state the dashboard serves: the five
// collections, their lookup tables, and derived statistics. State follows an
// explicit lifecycle (empty → loading → ready → stale → reloading): every
// mutation marks the snapshot stale and triggers a full reload of all five
// collections; there are no partial updates and no cache invalidation
// beyond "recompute from source".
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/enrich"
	"github.com/kursbuero/kursd/internal/livingapps"
)

// State is the lifecycle phase of the dashboard data.
type State string

const (
	StateEmpty     State = "empty"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateStale     State = "stale"
	StateReloading State = "reloading"
)

// RecordSource fetches the records of one app from remote storage.
type RecordSource interface {
	Records(ctx context.Context, appID string) ([]livingapps.Record, error)
}

// SnapshotCache persists the last good snapshot per collection so a restart
// with the remote down can still serve read-only data.
type SnapshotCache interface {
	SaveSnapshot(collection string, records []byte, fetchedAt time.Time) error
	LoadSnapshot(collection string) ([]byte, time.Time, error)
}

// Snapshot is an immutable view of all collections at one load.
type Snapshot struct {
	Collections map[catalog.Key][]livingapps.Record
	Tables      map[catalog.Key]map[string]livingapps.Record
	FetchedAt   time.Time
	FromCache   bool
}

// Records returns the records of one collection in load order.
func (s *Snapshot) Records(k catalog.Key) []livingapps.Record {
	return s.Collections[k]
}

// Courses returns the enriched course views.
func (s *Snapshot) Courses() []enrich.Course {
	return enrich.Courses(s.Collections[catalog.Courses], s.Tables[catalog.Instructors], s.Tables[catalog.Rooms])
}

// Enrollments returns the enriched enrollment views.
func (s *Snapshot) Enrollments() []enrich.Enrollment {
	return enrich.Enrollments(s.Collections[catalog.Enrollments], s.Tables[catalog.Participants], s.Tables[catalog.Courses])
}

// Loader loads and owns the current Snapshot.
type Loader struct {
	source RecordSource
	appIDs map[catalog.Key]string
	cache  SnapshotCache // optional
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	snap    *Snapshot
	lastErr error
}

// New creates a Loader over the given source. appIDs maps each collection
// to its remote app id. cache may be nil.
func New(source RecordSource, appIDs map[catalog.Key]string, cache SnapshotCache) *Loader {
	return &Loader{
		source: source,
		appIDs: appIDs,
		cache:  cache,
		logger: slog.Default(),
		state:  StateEmpty,
	}
}

// AppID returns the remote app id of a collection.
func (l *Loader) AppID(k catalog.Key) string {
	return l.appIDs[k]
}

// Snapshot returns the current snapshot (nil before the first successful
// load), the lifecycle state, and the last load error if any.
func (l *Loader) Snapshot() (*Snapshot, State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap, l.state, l.lastErr
}

// MarkStale records that a mutation went through and the snapshot no longer
// reflects remote state.
func (l *Loader) MarkStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snap != nil {
		l.state = StateStale
	}
}

// IsStale reports whether a reload is due.
func (l *Loader) IsStale() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateStale
}

// Load fetches all five collections concurrently and swaps in a fresh
// snapshot once every one of them has loaded. Any single failure fails the
// whole load and leaves the previous snapshot visible (marked stale), so the
// dashboard never shows a partially updated view.
func (l *Loader) Load(ctx context.Context) error {
	l.mu.Lock()
	if l.snap == nil {
		l.state = StateLoading
	} else {
		l.state = StateReloading
	}
	l.mu.Unlock()

	collections := make(map[catalog.Key][]livingapps.Record, len(catalog.Keys))
	var cmu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for _, k := range catalog.Keys {
		k := k
		g.Go(func() error {
			records, err := l.source.Records(gCtx, l.appIDs[k])
			if err != nil {
				return fmt.Errorf("loading %s: %w", k, err)
			}
			cmu.Lock()
			collections[k] = records
			cmu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		l.mu.Lock()
		l.lastErr = err
		if l.snap == nil {
			l.state = StateEmpty
		} else {
			l.state = StateStale
		}
		l.mu.Unlock()
		return err
	}

	snap := &Snapshot{
		Collections: collections,
		Tables:      make(map[catalog.Key]map[string]livingapps.Record, len(collections)),
		FetchedAt:   time.Now().UTC(),
	}
	for k, records := range collections {
		snap.Tables[k] = enrich.Table(records)
	}

	l.mu.Lock()
	l.snap = snap
	l.state = StateReady
	l.lastErr = nil
	l.mu.Unlock()

	l.persist(snap)
	return nil
}

// persist writes the snapshot to the cache; failures are logged, not fatal.
func (l *Loader) persist(snap *Snapshot) {
	if l.cache == nil {
		return
	}
	for k, records := range snap.Collections {
		data, err := json.Marshal(records)
		if err != nil {
			l.logger.Warn("marshalling snapshot", "collection", k, "error", err)
			continue
		}
		if err := l.cache.SaveSnapshot(string(k), data, snap.FetchedAt); err != nil {
			l.logger.Warn("caching snapshot", "collection", k, "error", err)
		}
	}
}

// RestoreFromCache installs the last persisted snapshot, marked stale and
// FromCache, so reads work while the remote is unreachable. It fails if any
// collection is missing from the cache.
func (l *Loader) RestoreFromCache() error {
	if l.cache == nil {
		return fmt.Errorf("no snapshot cache configured")
	}

	collections := make(map[catalog.Key][]livingapps.Record, len(catalog.Keys))
	var oldest time.Time
	for _, k := range catalog.Keys {
		data, fetchedAt, err := l.cache.LoadSnapshot(string(k))
		if err != nil {
			return fmt.Errorf("restoring %s: %w", k, err)
		}
		var records []livingapps.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("decoding cached %s: %w", k, err)
		}
		collections[k] = records
		if oldest.IsZero() || fetchedAt.Before(oldest) {
			oldest = fetchedAt
		}
	}

	snap := &Snapshot{
		Collections: collections,
		Tables:      make(map[catalog.Key]map[string]livingapps.Record, len(collections)),
		FetchedAt:   oldest,
		FromCache:   true,
	}
	for k, records := range collections {
		snap.Tables[k] = enrich.Table(records)
	}

	l.mu.Lock()
	l.snap = snap
	l.state = StateStale
	l.mu.Unlock()
	return nil
}
