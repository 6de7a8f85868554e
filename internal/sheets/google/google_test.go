package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"

	"tally/internal/core"
	"tally/internal/log"
)

type fakeSheetsAPI struct {
	mu      sync.Mutex
	tabs    []string
	calls   []string
	updated [][]any
}

func (f *fakeSheetsAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		path := r.URL.Path
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sheet-1"):
			f.calls = append(f.calls, "get")
			var sheets []map[string]any
			for _, title := range f.tabs {
				sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
			}
			json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})

		case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
			f.calls = append(f.calls, "add")
			var req struct {
				Requests []struct {
					AddSheet struct {
						Properties struct {
							Title string `json:"title"`
						} `json:"properties"`
					} `json:"addSheet"`
				} `json:"requests"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode batchUpdate: %v", err)
			}
			for _, rq := range req.Requests {
				f.tabs = append(f.tabs, rq.AddSheet.Properties.Title)
			}
			w.Write([]byte(`{}`))

		case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
			f.calls = append(f.calls, "clear")
			w.Write([]byte(`{}`))

		case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
			f.calls = append(f.calls, "update")
			if got := r.URL.Query().Get("valueInputOption"); got != "RAW" {
				t.Errorf("valueInputOption = %q", got)
			}
			var vr struct {
				Values [][]any `json:"values"`
			}
			if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
				t.Errorf("decode values: %v", err)
			}
			f.updated = vr.Values
			w.Write([]byte(`{}`))

		default:
			t.Errorf("unexpected request %s %s", r.Method, path)
			http.Error(w, "not found", http.StatusNotFound)
		}
	}
}

func newTestClient(t *testing.T, api *fakeSheetsAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewWithOptions(context.Background(), "sheet-1", time.UTC, log.New(log.DefaultConfig()),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	return c
}

func TestMirrorRecordsCreatesTabOnce(t *testing.T) {
	api := &fakeSheetsAPI{tabs: []string{"Sheet1"}}
	c := newTestClient(t, api)
	ctx := context.Background()

	recs := []core.ExpenseRecord{{
		ID:        "r1",
		Name:      "Bread",
		UnitPrice: decimal.RequireFromString("2.50"),
		Quantity:  2,
		Category:  "Food",
		CreatedAt: time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC),
	}}

	if err := c.MirrorRecords(ctx, "u1", recs); err != nil {
		t.Fatalf("MirrorRecords() error = %v", err)
	}
	if err := c.MirrorRecords(ctx, "u1", recs); err != nil {
		t.Fatalf("second MirrorRecords() error = %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	want := []string{"get", "add", "clear", "update", "clear", "update"}
	if strings.Join(api.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", api.calls, want)
	}
	if len(api.tabs) != 2 || api.tabs[1] != "Tally u1" {
		t.Fatalf("tabs = %v", api.tabs)
	}
	if len(api.updated) != 2 {
		t.Fatalf("rows = %v", api.updated)
	}
	row := api.updated[1]
	if row[0] != "2025-03-15 09:30" || row[1] != "Bread" || row[5] != "5.00" {
		t.Fatalf("row = %v", row)
	}
}

func TestMirrorRecordsExistingTab(t *testing.T) {
	api := &fakeSheetsAPI{tabs: []string{"Tally u2"}}
	c := newTestClient(t, api)

	if err := c.MirrorRecords(context.Background(), "u2", nil); err != nil {
		t.Fatalf("MirrorRecords() error = %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	for _, call := range api.calls {
		if call == "add" {
			t.Fatal("existing tab was added again")
		}
	}
	if len(api.updated) != 1 {
		t.Fatalf("expected header only, got %v", api.updated)
	}
}

func TestCredentialsLoad(t *testing.T) {
	if _, err := (Credentials{}).Load(); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	data, err := Credentials{JSON: `{"type":"service_account"}`, File: "/nonexistent"}.Load()
	if err != nil || !strings.Contains(string(data), "service_account") {
		t.Fatalf("Load() = %s, %v", data, err)
	}
	if _, err := (Credentials{File: "/nonexistent/key.json"}).Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := NewWithOptions(context.Background(), "  ", time.UTC, nil, goption.WithoutAuthentication()); err == nil {
		t.Fatal("expected error for empty spreadsheet id")
	}
}

func TestQuoteTab(t *testing.T) {
	if got := quoteTab("Tally o'neil"); got != "'Tally o''neil'" {
		t.Fatalf("quoteTab() = %q", got)
	}
}
