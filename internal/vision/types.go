// Package vision turns a scoreboard photo into a structured score reading
// via the Anthropic messages API.
package vision

import "time"

// messagesRequest is the provider request envelope.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

// message is one conversation turn.
type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// contentBlock is an image or text block within a turn.
type contentBlock struct {
	Type   string       `json:"type"` // image, text
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

// imageSource carries the base64 payload and its detected media type.
type imageSource struct {
	Type      string `json:"type"` // base64
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Reading is the structured result extracted from one scoreboard photo.
// Score fields are nil when not confidently extracted; a nil score with a
// high confidence is a valid reading of a non-scoreboard image.
type Reading struct {
	HomeScore  *int     `json:"homeScore,omitempty"`
	AwayScore  *int     `json:"awayScore,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"` // clamped to [0,1]
	Period     string   `json:"period,omitempty"`
	Clock      string   `json:"clock,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// HasScore reports whether both scores were extracted.
func (r *Reading) HasScore() bool {
	return r != nil && r.HomeScore != nil && r.AwayScore != nil
}

// Result is the outcome of one analysis call. Transmitted reports whether
// any request reached the wire, which drives usage accounting upstream.
type Result struct {
	Reading     *Reading
	MediaType   string
	Attempts    int
	Transmitted bool
	Duration    time.Duration
}

// Options configures the client.
type Options struct {
	BaseURL        string
	Model          string
	MaxTokens      int
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	LogBodies      bool // debug logging of redacted request bodies

	// OnAttempt, when set, is invoked at the start of each network
	// attempt with its 1-based number.
	OnAttempt func(attempt int)

	// OnParsing, when set, is invoked once a response body has been
	// received, right before decoding starts.
	OnParsing func()
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.anthropic.com"
	}
	if o.Model == "" {
		o.Model = "claude-sonnet-4-20250514"
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 30 * time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	return o
}
