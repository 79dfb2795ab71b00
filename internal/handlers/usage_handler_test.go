package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/hoopscore/scorelens/internal/usage"
)

func newUsageRouter(t *testing.T) (*gin.Engine, *usage.Limiter) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter, err := usage.NewLimiter(nil)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	t.Cleanup(limiter.Stop)

	r := gin.New()
	r.GET("/api/usage", GetUsage(limiter))
	r.PUT("/api/limits", UpdateLimits(limiter, nil))
	r.POST("/api/limits/reset", ResetUsage(limiter))
	return r, limiter
}

func TestGetUsageReportsDefaults(t *testing.T) {
	r, _ := newUsageRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	if w.Code != 200 {
		t.Fatalf("GET /api/usage = %d", w.Code)
	}

	body := w.Body.String()
	if gjson.Get(body, "limits.perMinute").Int() != 3 ||
		gjson.Get(body, "limits.perHour").Int() != 20 ||
		gjson.Get(body, "limits.perDay").Int() != 40 {
		t.Fatalf("default limits = %s", body)
	}
	if gjson.Get(body, "exceeded").Bool() {
		t.Fatalf("fresh limiter reports exceeded: %s", body)
	}
}

func TestUpdateLimitsNormalizesOrdering(t *testing.T) {
	r, limiter := newUsageRouter(t)

	// perHour below perMinute gets clamped up, not rejected.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/limits",
		strings.NewReader(`{"perMinute":10,"perHour":5,"perDay":50}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("PUT /api/limits = %d %s", w.Code, w.Body.String())
	}

	limits := limiter.Limits()
	if limits.PerMinute != 10 || limits.PerHour != 10 || limits.PerDay != 50 {
		t.Fatalf("limits after update = %+v", limits)
	}
}

func TestUpdateLimitsWritesOverrideFile(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter, err := usage.NewLimiter(nil)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	t.Cleanup(limiter.Stop)

	path := filepath.Join(t.TempDir(), "usage_limits.json")
	lf, err := usage.NewLimitsFile(path, limiter.Limits(), func(l usage.Limits) {
		if err := limiter.SetLimits(l); err != nil {
			t.Errorf("apply limits: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("NewLimitsFile: %v", err)
	}
	t.Cleanup(func() { lf.Close() })

	r := gin.New()
	r.PUT("/api/limits", UpdateLimits(limiter, lf))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/limits",
		strings.NewReader(`{"perMinute":10,"perHour":20,"perDay":50}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("PUT /api/limits = %d %s", w.Code, w.Body.String())
	}

	if got := limiter.Limits(); got.PerMinute != 10 || got.PerHour != 20 || got.PerDay != 50 {
		t.Fatalf("limits after update = %+v", got)
	}

	// The change must land in the override file, or the next startup
	// would silently restore the old ceilings.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read override file: %v", err)
	}
	var saved usage.Limits
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("decode override file: %v", err)
	}
	if saved.PerMinute != 10 || saved.PerHour != 20 || saved.PerDay != 50 {
		t.Fatalf("override file = %+v", saved)
	}
}

func TestUpdateLimitsRejectsNonPositive(t *testing.T) {
	r, _ := newUsageRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/limits",
		strings.NewReader(`{"perMinute":0,"perHour":5,"perDay":50}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != 400 {
		t.Fatalf("PUT zero limit = %d, want 400", w.Code)
	}
}

func TestResetUsageClearsCounters(t *testing.T) {
	r, limiter := newUsageRouter(t)

	for i := 0; i < 3; i++ {
		if err := limiter.RecordCall(); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/limits/reset", nil))
	if w.Code != 200 {
		t.Fatalf("POST reset = %d", w.Code)
	}

	if got := limiter.Status().Counts.LastDay; got != 0 {
		t.Fatalf("count after reset = %d", got)
	}
}
