package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

var testImage = padded([]byte{0xFF, 0xD8, 0xFF, 0xE0})

const testAPIKey = "sk-ant-REDACTED"

func successEnvelope() []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"id":   "msg_01",
		"type": "message",
		"role": "assistant",
		"content": []map[string]interface{}{
			{"type": "text", "text": `Sure! {"home_score": 3, "away_score": 2, "period": "P2", "clock": "12:11", "confidence": 0.88, "notes": null}`},
		},
	})
	return b
}

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:        baseURL,
		MaxAttempts:    3,
		AttemptTimeout: 5 * time.Second,
		BackoffBase:    time.Millisecond,
	})
}

func TestAnalyzeSendsProviderContract(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Write(successEnvelope())
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.Analyze(context.Background(), testImage, testAPIKey)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if gotHeader.Get("x-api-key") != testAPIKey {
		t.Fatalf("missing credential header")
	}
	if gotHeader.Get("anthropic-version") != anthropicVersion {
		t.Fatalf("missing API version header, got %q", gotHeader.Get("anthropic-version"))
	}
	if gotHeader.Get("Content-Type") != "application/json" {
		t.Fatalf("content type = %q", gotHeader.Get("Content-Type"))
	}

	if gjson.GetBytes(gotBody, "model").String() == "" {
		t.Fatalf("request body missing model")
	}
	if gjson.GetBytes(gotBody, "max_tokens").Int() <= 0 {
		t.Fatalf("request body missing max_tokens")
	}
	if gjson.GetBytes(gotBody, "messages.0.content.0.source.media_type").String() != "image/jpeg" {
		t.Fatalf("image block missing detected media type")
	}
	if gjson.GetBytes(gotBody, "messages.0.content.0.source.type").String() != "base64" {
		t.Fatalf("image block missing base64 source type")
	}
	if gjson.GetBytes(gotBody, "messages.0.content.1.text").String() == "" {
		t.Fatalf("text block missing extraction instruction")
	}

	if !result.Transmitted || result.Attempts != 1 {
		t.Fatalf("result = %+v", result)
	}
	if !result.Reading.HasScore() || *result.Reading.HomeScore != 3 {
		t.Fatalf("reading = %+v", result.Reading)
	}
}

func TestAnalyzeRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(successEnvelope())
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.Analyze(context.Background(), testImage, testAPIKey)
	if err != nil {
		t.Fatalf("Analyze after 2x503: %v", err)
	}
	if result.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", result.Attempts)
	}
	if !result.Reading.HasScore() {
		t.Fatalf("expected a reading, got %+v", result.Reading)
	}
}

func TestAnalyzeExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.Analyze(context.Background(), testImage, testAPIKey)

	var classified *Error
	if !errors.As(err, &classified) || classified.Kind != KindNetworkTransient {
		t.Fatalf("expected NetworkTransient, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("provider saw %d attempts, want 3", got)
	}
	if !result.Transmitted {
		t.Fatalf("retry-exhausted failure still transmitted requests")
	}
}

func TestAnalyzeRemoteRateLimitNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.Analyze(context.Background(), testImage, testAPIKey)

	var classified *Error
	if !errors.As(err, &classified) || classified.Kind != KindRateLimitRemote {
		t.Fatalf("expected RateLimitRemote, got %v", err)
	}
	if classified.RetryAfter != 42*time.Second {
		t.Fatalf("RetryAfter = %v, want 42s", classified.RetryAfter)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("429 must not burn the retry budget, saw %d attempts", got)
	}
	if !result.Transmitted {
		t.Fatalf("429 means a request was transmitted")
	}
}

func TestAnalyzeClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), testImage, testAPIKey)

	var classified *Error
	if !errors.As(err, &classified) || classified.Kind != KindRequestRejected {
		t.Fatalf("expected RequestRejected, got %v", err)
	}
	if classified.Status != 400 {
		t.Fatalf("status = %d, want 400", classified.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("4xx must fail immediately, saw %d attempts", got)
	}
}

func TestAnalyzeRejectsUnsupportedImage(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")

	_, err := c.Analyze(context.Background(), []byte("definitely not an image"), testAPIKey)
	var classified *Error
	if !errors.As(err, &classified) || classified.Kind != KindImageInvalid {
		t.Fatalf("expected ImageInvalid, got %v", err)
	}
}

func TestAnalyzeCancellationAborts(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server re-arms its background read and
		// can observe the client disconnect; otherwise r.Context() is
		// never canceled and srv.Close deadlocks on this handler.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Analyze(ctx, testImage, testAPIKey)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
