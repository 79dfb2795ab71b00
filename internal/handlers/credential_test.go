package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/hoopscore/scorelens/internal/vault"
)

const testAPIKey = "sk-ant-REDACTED"

func newCredentialRouter(t *testing.T) (*gin.Engine, vault.Vault) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := vault.NewFileVault(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileVault: %v", err)
	}

	r := gin.New()
	r.GET("/api/credential", GetCredential(v))
	r.PUT("/api/credential", PutCredential(v))
	r.DELETE("/api/credential", DeleteCredential(v))
	r.GET("/api/credential/availability", CredentialAvailability(v))
	return r, v
}

func TestCredentialLifecycle(t *testing.T) {
	r, _ := newCredentialRouter(t)

	// Nothing stored yet.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/credential", nil))
	if w.Code != 200 || gjson.Get(w.Body.String(), "configured").Bool() {
		t.Fatalf("initial GET = %d %s", w.Code, w.Body.String())
	}

	// Store a key; the response must echo only the masked form.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/credential",
		strings.NewReader(`{"api_key":"`+testAPIKey+`"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("PUT = %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), testAPIKey) {
		t.Fatalf("response leaked the full key")
	}
	if masked := gjson.Get(w.Body.String(), "masked").String(); !strings.HasPrefix(masked, "sk-ant-") {
		t.Fatalf("masked = %q", masked)
	}

	// GET now reports configured, still masked.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/credential", nil))
	if !gjson.Get(w.Body.String(), "configured").Bool() {
		t.Fatalf("GET after PUT = %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), testAPIKey) {
		t.Fatalf("GET leaked the full key")
	}

	// Delete, twice: both succeed.
	for i := 0; i < 2; i++ {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/credential", nil))
		if w.Code != 200 {
			t.Fatalf("DELETE #%d = %d %s", i+1, w.Code, w.Body.String())
		}
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/credential", nil))
	if gjson.Get(w.Body.String(), "configured").Bool() {
		t.Fatalf("credential survived delete: %s", w.Body.String())
	}
}

func TestPutCredentialRejectsMalformedKey(t *testing.T) {
	r, v := newCredentialRouter(t)

	for _, key := range []string{"", "sk-ant", "not-a-key", "sk-ant-api03-short"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/credential",
			strings.NewReader(`{"api_key":"`+key+`"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != 400 {
			t.Fatalf("PUT %q = %d, want 400", key, w.Code)
		}
	}

	if v.HasCredential() {
		t.Fatalf("a rejected key must not be stored")
	}
}

func TestCredentialAvailability(t *testing.T) {
	r, _ := newCredentialRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/credential/availability", nil))
	if w.Code != 200 {
		t.Fatalf("availability = %d", w.Code)
	}
	if !gjson.Get(w.Body.String(), "available").Bool() {
		t.Fatalf("temp-dir vault should be available: %s", w.Body.String())
	}
	// The probe must not leave a credential behind.
	if gjson.Get(w.Body.String(), "configured").Bool() {
		t.Fatalf("availability probe stored a credential")
	}
}
