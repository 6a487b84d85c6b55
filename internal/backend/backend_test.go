package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/playsense/storewatch/internal/fault"
)

func TestFetchData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req fetchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Action != "fetchData" || req.Title != "Portal 2" || req.Identifier != "620" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(fetchResponse{
			Success: true,
			Data: &GameData{
				Title:     "Portal 2",
				MainStory: "8½ Hours",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	data, err := c.FetchData(context.Background(), "Portal 2", "620", "store")
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	if data == nil || data.MainStory != "8½ Hours" {
		t.Fatalf("data = %+v", data)
	}
}

func TestFetchDataServiceRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fetchResponse{Success: false, Error: "game not found"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.FetchData(context.Background(), "Nonexistent", "", "store")
	if err == nil {
		t.Fatal("want error on success=false")
	}
	if fault.KindOf(err) != fault.KindBackendRequestFailed {
		t.Errorf("kind = %v", fault.KindOf(err))
	}
}

func TestFetchDataNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fetchResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	data, err := c.FetchData(context.Background(), "Portal 2", "620", "store")
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	if data != nil {
		t.Fatalf("data = %+v, want nil for success with no payload", data)
	}
}

func TestFetchDataRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(fetchResponse{Success: true, Data: &GameData{Title: "Portal 2"}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RetryMax: 3, RetryWaitMin: time.Millisecond, RetryWaitMax: 5 * time.Millisecond})
	data, err := c.FetchData(context.Background(), "Portal 2", "620", "store")
	if err != nil {
		t.Fatalf("FetchData after retries: %v", err)
	}
	if data == nil || data.Title != "Portal 2" {
		t.Fatalf("data = %+v", data)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestReportErrorSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req reportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode report: %v", err)
		}
		if req.Action != "reportError" || req.Report.Message == "" {
			t.Errorf("report = %+v", req)
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RetryMax: 1, RetryWaitMin: time.Millisecond, RetryWaitMax: 5 * time.Millisecond})
	// Must not panic or block; failures are swallowed.
	c.ReportError(context.Background(), ErrorReport{
		Message: "detection panicked",
		Kind:    "unknown_error",
		URL:     "https://store.steampowered.com/app/620/",
	})
}
