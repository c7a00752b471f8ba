package livingapps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecordsDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/apps/app1/records" {
			t.Errorf("path = %q, want /apps/app1/records", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{"record_id": "r1", "createdat": "2026-01-01T00:00:00Z", "fields": map[string]any{"titel": "Yoga"}},
				{"record_id": "r2", "fields": map[string]any{}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	records, err := c.Records(context.Background(), "app1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != "r1" {
		t.Errorf("ID = %q, want r1", records[0].ID)
	}
	if got := records[0].Fields["titel"]; got != "Yoga" {
		t.Errorf("titel = %v, want Yoga", got)
	}
}

func TestCreateRecordSendsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if body.Fields["raumname"] != "Saal 2" {
			t.Errorf("raumname = %v, want Saal 2", body.Fields["raumname"])
		}
		json.NewEncoder(w).Encode(Record{ID: "new-1", Fields: body.Fields})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	rec, err := c.CreateRecord(context.Background(), "app1", map[string]any{"raumname": "Saal 2"})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if rec.ID != "new-1" {
		t.Errorf("ID = %q, want new-1", rec.ID)
	}
}

func TestUpdateRecordPath(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	if err := c.UpdateRecord(context.Background(), "app1", "r9", map[string]any{"bezahlt": true}); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if gotPath != "/apps/app1/records/r9" {
		t.Errorf("path = %q, want /apps/app1/records/r9", gotPath)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
}

func TestAPIErrorFromJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "token expired"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.Records(context.Background(), "app1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", apiErr.Status)
	}
	if apiErr.Message != "token expired" {
		t.Errorf("Message = %q, want token expired", apiErr.Message)
	}
}

func TestDeleteRecordNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.DeleteRecord(context.Background(), "app1", "r1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Message != "gateway timeout" {
		t.Errorf("Message = %q, want gateway timeout", apiErr.Message)
	}
}
