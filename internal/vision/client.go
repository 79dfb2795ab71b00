package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/tidwall/sjson"
)

const anthropicVersion = "2023-06-01"

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 1 << 20

// Client analyzes scoreboard photos through the vision provider with
// bounded retries and resilient parsing. One Client is safe for reuse;
// serializing concurrent calls is the caller's job.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// NewClient creates a client with the given options.
func NewClient(opts Options) *Client {
	return &Client{
		opts: opts.withDefaults(),
		// Per-attempt deadlines come from the request context.
		httpClient: &http.Client{},
	}
}

// Analyze runs one photo through the provider and returns the extracted
// reading. Failures come back as *Error with a classified Kind; the
// Result is returned alongside retry-exhausted failures so the caller can
// see whether a request was transmitted.
func (c *Client) Analyze(ctx context.Context, image []byte, apiKey string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	// Preprocess: trust the byte header, not any declared type. The
	// original encoding passes through untouched to avoid quality loss.
	mediaType := DetectMediaType(image)
	if mediaType == "" {
		return nil, newError(KindImageInvalid, fmt.Errorf("unsupported or corrupt image encoding"))
	}
	result.MediaType = mediaType

	bodyBytes, err := c.buildRequestBody(image, mediaType)
	if err != nil {
		return nil, newError(KindImageInvalid, fmt.Errorf("failed to encode request: %w", err))
	}

	if c.opts.LogBodies {
		redacted, rerr := sjson.SetBytes(bodyBytes, "messages.0.content.0.source.data", "<redacted>")
		if rerr == nil {
			log.Printf("🔍 [Vision] Request body: %s", redacted)
		}
	}

	respBody, err := c.transmit(ctx, bodyBytes, apiKey, result)
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	if c.opts.OnParsing != nil {
		c.opts.OnParsing()
	}
	reading, err := parseResponse(respBody)
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	result.Reading = reading
	result.Duration = time.Since(start)
	return result, nil
}

// buildRequestBody assembles the messages request with one user turn:
// an image block and the extraction instruction.
func (c *Client) buildRequestBody(image []byte, mediaType string) ([]byte, error) {
	req := messagesRequest{
		Model:     c.opts.Model,
		MaxTokens: c.opts.MaxTokens,
		Messages: []message{
			{
				Role: "user",
				Content: []contentBlock{
					{
						Type: "image",
						Source: &imageSource{
							Type:      "base64",
							MediaType: mediaType,
							Data:      base64.StdEncoding.EncodeToString(image),
						},
					},
					{
						Type: "text",
						Text: extractionPrompt,
					},
				},
			},
		},
	}
	return json.Marshal(req)
}

// transmit performs the network call with exponential backoff. Transient
// failures (timeout, 5xx) retry up to MaxAttempts total attempts; 429 and
// other 4xx fail immediately. result.Transmitted flips once a request
// demonstrably reached the wire.
func (c *Client) transmit(ctx context.Context, bodyBytes []byte, apiKey string, result *Result) ([]byte, error) {
	var respBody []byte

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.opts.BackoffBase
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.opts.MaxAttempts-1)), ctx)

	op := func() error {
		result.Attempts++
		if c.opts.OnAttempt != nil {
			c.opts.OnAttempt(result.Attempts)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()

		// The body reader is consumed per attempt, so the request is
		// rebuilt each time.
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost,
			c.opts.BaseURL+"/v1/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			return backoff.Permanent(newError(KindRequestRejected, err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				// Caller cancellation aborts promptly, no reclassification.
				return backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// The deadline may have fired during connection setup, but
				// the transport does not say how far the attempt got.
				// Counted as transmitted: over-counting usage is safer
				// than under-counting against provider ceilings.
				result.Transmitted = true
				log.Printf("⚠️ [Vision] Attempt %d timed out after %s", result.Attempts, c.opts.AttemptTimeout)
				return newError(KindNetworkTransient, err)
			}
			// Connection-level failure before anything reached the wire.
			return newError(KindNetworkTransient, err)
		}
		defer resp.Body.Close()

		result.Transmitted = true
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return newError(KindNetworkTransient, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			respBody = body
			return nil
		}

		kind := classifyStatus(resp.StatusCode)
		classified := &Error{
			Kind:   kind,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("provider returned status %d", resp.StatusCode),
		}

		switch kind {
		case KindRateLimitRemote:
			// Server-side limit: surface upward so the caller consults
			// local usage state instead of hammering the provider.
			classified.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"))
			return backoff.Permanent(classified)
		case KindRequestRejected:
			return backoff.Permanent(classified)
		default:
			log.Printf("⚠️ [Vision] Attempt %d failed with status %d, will retry", result.Attempts, resp.StatusCode)
			return classified
		}
	}

	if err := backoff.Retry(op, policy); err != nil {
		var classified *Error
		if errors.As(err, &classified) {
			return nil, classified
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, newError(KindNetworkTransient, err)
	}

	return respBody, nil
}
