package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/dashboard"
	"github.com/kursbuero/kursd/internal/livingapps"
	"github.com/kursbuero/kursd/internal/scan"
	"github.com/kursbuero/kursd/internal/storage"
)

// RecordWriter abstracts the mutating half of the remote record storage.
type RecordWriter interface {
	CreateRecord(ctx context.Context, appID string, fields map[string]any) (livingapps.Record, error)
	UpdateRecord(ctx context.Context, appID, recordID string, fields map[string]any) error
	DeleteRecord(ctx context.Context, appID, recordID string) error
}

// Extractor abstracts document extraction for the API layer.
type Extractor interface {
	ExtractImage(ctx context.Context, dataURI string, collection catalog.Key) (map[string]any, error)
	ExtractText(ctx context.Context, text string, collection catalog.Key) (map[string]any, error)
}

// ScanLog persists scan audit entries; nil disables auditing.
type ScanLog interface {
	SaveScan(storage.Scan) error
	GetRecentScans(limit int) ([]storage.Scan, error)
}

// Deps holds the dependencies of the HTTP surface.
type Deps struct {
	Loader    *dashboard.Loader
	Writer    RecordWriter
	Extractor Extractor
	Scans     ScanLog
	EncodeRef scan.RefEncoder
	Token     string
}

// NewHandler builds the HTTP API. /health is open; everything else requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/dashboard", handleDashboard(deps))
		r.Post("/reload", handleReload(deps))
		r.Get("/collections/{key}", handleListCollection(deps))
		r.Post("/collections/{key}", handleCreateRecord(deps))
		r.Patch("/collections/{key}/{id}", handleUpdateRecord(deps))
		r.Delete("/collections/{key}/{id}", handleDeleteRecord(deps))
		r.Get("/courses/{id}/enrollments", handleCourseEnrollments(deps))
		r.Post("/scan", handleScan(deps))
		r.Get("/scans", handleListScans(deps))
	})

	return r
}

// snapshotOr503 fetches the current snapshot or reports the retryable
// not-ready state: either still loading or the initial load failed.
func snapshotOr503(w http.ResponseWriter, deps Deps) (*dashboard.Snapshot, dashboard.State, bool) {
	snap, state, lastErr := deps.Loader.Snapshot()
	if snap != nil {
		return snap, state, true
	}
	if lastErr != nil {
		httpError(w, http.StatusServiceUnavailable, "api_error", "initial load failed, retry with POST /reload: %v", lastErr)
	} else {
		httpError(w, http.StatusServiceUnavailable, "api_error", "data not loaded yet")
	}
	return nil, state, false
}

func handleDashboard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, state, ok := snapshotOr503(w, deps)
		if !ok {
			return
		}

		today := dashboard.Today(time.Now())
		views := dashboard.FilterCourseViews(snap.CourseViews(today), r.URL.Query().Get("filter"))

		writeJSON(w, map[string]any{
			"state":        state,
			"fetched_at":   snap.FetchedAt,
			"from_cache":   snap.FromCache,
			"stats":        snap.ComputeStats(today),
			"courses":      views,
			"enrollments":  snap.Enrollments(),
			"rooms":        snap.Records(catalog.Rooms),
			"instructors":  snap.Records(catalog.Instructors),
			"participants": snap.Records(catalog.Participants),
		})
	}
}

func handleReload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Loader.Load(r.Context()); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "reload failed: %v", err)
			return
		}
		snap, state, _ := deps.Loader.Snapshot()
		writeJSON(w, map[string]any{"state": state, "fetched_at": snap.FetchedAt})
	}
}

func collectionKey(w http.ResponseWriter, r *http.Request) (catalog.Key, bool) {
	k := catalog.Key(chi.URLParam(r, "key"))
	if !k.Valid() {
		httpError(w, http.StatusNotFound, "invalid_request_error", "unknown collection %q", string(k))
		return "", false
	}
	return k, true
}

func handleListCollection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := collectionKey(w, r)
		if !ok {
			return
		}
		snap, _, ok := snapshotOr503(w, deps)
		if !ok {
			return
		}

		switch k {
		case catalog.Courses:
			writeJSON(w, snap.CourseViews(dashboard.Today(time.Now())))
		case catalog.Enrollments:
			writeJSON(w, snap.Enrollments())
		default:
			records := snap.Records(k)
			if records == nil {
				records = []livingapps.Record{}
			}
			writeJSON(w, records)
		}
	}
}

type recordRequest struct {
	Fields map[string]any `json:"fields"`
}

func decodeRecordRequest(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return nil, false
	}
	if req.Fields == nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "fields is required")
		return nil, false
	}
	return req.Fields, true
}

// reloadAfterMutation refreshes the snapshot wholesale. The mutation itself
// already succeeded; a failed reload only leaves the snapshot stale, and the
// background refresher keeps retrying.
func reloadAfterMutation(ctx context.Context, deps Deps) {
	deps.Loader.MarkStale()
	if err := deps.Loader.Load(ctx); err != nil {
		slog.Warn("reload after mutation failed", "error", err)
	}
}

func handleCreateRecord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := collectionKey(w, r)
		if !ok {
			return
		}
		fields, ok := decodeRecordRequest(w, r)
		if !ok {
			return
		}

		created, err := deps.Writer.CreateRecord(r.Context(), deps.Loader.AppID(k), fields)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "creating record: %v", err)
			return
		}
		reloadAfterMutation(r.Context(), deps)

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, created)
	}
}

func handleUpdateRecord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := collectionKey(w, r)
		if !ok {
			return
		}
		fields, ok := decodeRecordRequest(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		if err := deps.Writer.UpdateRecord(r.Context(), deps.Loader.AppID(k), id, fields); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "updating record: %v", err)
			return
		}
		reloadAfterMutation(r.Context(), deps)

		writeJSON(w, map[string]string{"id": id, "status": "updated"})
	}
}

func handleDeleteRecord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := collectionKey(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		if err := deps.Writer.DeleteRecord(r.Context(), deps.Loader.AppID(k), id); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "deleting record: %v", err)
			return
		}
		reloadAfterMutation(r.Context(), deps)

		writeJSON(w, map[string]string{"id": id, "status": "deleted"})
	}
}

func handleCourseEnrollments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, _, ok := snapshotOr503(w, deps)
		if !ok {
			return
		}
		enrollments := snap.EnrollmentsForCourse(chi.URLParam(r, "id"))
		if enrollments == nil {
			writeJSON(w, []any{})
			return
		}
		writeJSON(w, enrollments)
	}
}

// ScanRequest carries a photographed or PDF document plus the operator's
// current draft for one collection.
type ScanRequest struct {
	Collection string         `json:"collection"`
	Image      string         `json:"image,omitempty"` // data URI or bare base64
	PDF        string         `json:"pdf,omitempty"`   // base64-encoded PDF
	Fields     map[string]any `json:"fields"`
}

// ScanResponse is the merged draft plus resolution detail.
type ScanResponse struct {
	ID string `json:"id"`
	scan.Result
}

func handleScan(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxScanBodySize)
		var req ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		k := catalog.Key(req.Collection)
		if !k.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown collection %q", req.Collection)
			return
		}
		if (req.Image == "") == (req.PDF == "") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "exactly one of image or pdf is required")
			return
		}
		snap, _, ok := snapshotOr503(w, deps)
		if !ok {
			return
		}
		if req.Fields == nil {
			req.Fields = map[string]any{}
		}

		scanID := uuid.New().String()
		sourceType := "image"

		var extracted map[string]any
		var err error
		if req.Image != "" {
			extracted, err = deps.Extractor.ExtractImage(r.Context(), req.Image, k)
		} else {
			sourceType = "pdf"
			var data []byte
			data, err = base64.StdEncoding.DecodeString(req.PDF)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 pdf")
				return
			}
			var text string
			text, err = scan.PDFText(data)
			if err == nil {
				extracted, err = deps.Extractor.ExtractText(r.Context(), text, k)
			}
		}
		if err != nil {
			// The draft is left untouched; only the failure is reported.
			auditScan(deps.Scans, storage.Scan{
				ID: scanID, CreatedAt: time.Now().UTC(), Collection: string(k),
				SourceType: sourceType, Status: "failed", Error: err.Error(),
			})
			httpError(w, http.StatusBadGateway, "api_error", "extraction failed: %v", err)
			return
		}

		result := scan.Merge(k, req.Fields, extracted, snap.Records, deps.EncodeRef)

		entry := storage.Scan{
			ID:         scanID,
			CreatedAt:  time.Now().UTC(),
			Collection: string(k),
			SourceType: sourceType,
			Status:     "completed",
		}
		if b, err := json.Marshal(extracted); err == nil {
			entry.ExtractedJSON = string(b)
		}
		if b, err := json.Marshal(result.Fields); err == nil {
			entry.MergedJSON = string(b)
		}
		resolved := make([]string, 0, len(result.Resolved))
		for key := range result.Resolved {
			resolved = append(resolved, key)
		}
		if b, err := json.Marshal(resolved); err == nil {
			entry.ResolvedKeys = string(b)
		}
		auditScan(deps.Scans, entry)

		writeJSON(w, ScanResponse{ID: scanID, Result: result})
	}
}

func auditScan(log ScanLog, entry storage.Scan) {
	if log == nil {
		return
	}
	if err := log.SaveScan(entry); err != nil {
		slog.Warn("saving scan audit entry", "error", err)
	}
}

func handleListScans(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Scans == nil {
			writeJSON(w, []any{})
			return
		}
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}
		scans, err := deps.Scans.GetRecentScans(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing scans: %v", err)
			return
		}
		if scans == nil {
			scans = []storage.Scan{}
		}
		writeJSON(w, scans)
	}
}
