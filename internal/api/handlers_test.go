package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/origo-stack/performance-simulator/internal/broadcast"
	"github.com/origo-stack/performance-simulator/internal/dispatcher"
	"github.com/origo-stack/performance-simulator/internal/presets"
	"github.com/origo-stack/performance-simulator/internal/ratedist"
	"github.com/origo-stack/performance-simulator/internal/store"
)

func newTestRouter(t *testing.T, targetURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	presetsPath := filepath.Join(t.TempDir(), "presets.json")
	presetStore, err := presets.New(presetsPath, ConfigValidator())
	if err != nil {
		t.Fatalf("presets.New: %v", err)
	}

	hub := broadcast.NewHub()
	go hub.Run()

	h := &Handlers{
		Store:    store.New(),
		Registry: ratedist.Default(),
		Dispatcher: dispatcher.New(dispatcher.Dependencies{
			Registry:   ratedist.Default(),
			Hub:        hub,
			MaxRetries: 1,
			RequestTO:  time.Second,
		}),
		Presets:   presetStore,
		TargetURL: targetURL,
		Method:    http.MethodGet,
	}
	return SetupRouter(h, hub)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStartTestAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	router := newTestRouter(t, srv.URL)
	n := 3
	rec := doJSON(t, router, http.MethodPost, "/api/v1/tests/start", StartTestRequest{
		NumRequests: &n,
		SpawnRate:   50,
		UserCount:   1,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["status"] != "starting" {
		t.Errorf("status = %v, want starting", resp["status"])
	}
	if resp["test_id"] == "" || resp["test_id"] == nil {
		t.Errorf("expected non-empty test_id")
	}
}

func TestStartTestRejectsDistributionWithoutTargetRPS(t *testing.T) {
	router := newTestRouter(t, "http://unused")
	rec := doJSON(t, router, http.MethodPost, "/api/v1/tests/start", StartTestRequest{
		Distribution: &DistributionRef{Name: "constant"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestStopUnknownTestReturns404(t *testing.T) {
	router := newTestRouter(t, "http://unused")
	rec := doJSON(t, router, http.MethodPost, "/api/v1/tests/stop", StopTestRequestBody{TestID: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetStatusUnknownTestReturns404(t *testing.T) {
	router := newTestRouter(t, "http://unused")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/status/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListPluginsIncludesBuiltins(t *testing.T) {
	router := newTestRouter(t, "http://unused")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var metas []ratedist.Metadata
	if err := json.Unmarshal(rec.Body.Bytes(), &metas); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(metas) < 5 {
		t.Errorf("expected at least 5 builtin shapes, got %d", len(metas))
	}
}

func TestValidateDistributionUnknownName(t *testing.T) {
	router := newTestRouter(t, "http://unused")
	rec := doJSON(t, router, http.MethodPost, "/api/v1/distributions/nope/validate", ValidateConfigRequest{
		Config: map[string]any{},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

func TestPresetCreateAndList(t *testing.T) {
	router := newTestRouter(t, "http://unused")
	rec := doJSON(t, router, http.MethodPost, "/api/v1/presets", PresetRequest{
		Name:   "smoke",
		Config: map[string]any{"test_type": "linear", "user_count": float64(2)},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, req)
	var list []presets.Preset
	if err := json.Unmarshal(listRec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 1 || list[0].Name != "smoke" {
		t.Errorf("expected one preset named smoke, got %+v", list)
	}
}

func TestPresetRejectsDistributionWithoutTargetRPS(t *testing.T) {
	router := newTestRouter(t, "http://unused")
	rec := doJSON(t, router, http.MethodPost, "/api/v1/presets", PresetRequest{
		Name: "bad",
		Config: map[string]any{
			"distribution": map[string]any{"name": "constant", "config": map[string]any{}},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	router := newTestRouter(t, "http://unused")
	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}
