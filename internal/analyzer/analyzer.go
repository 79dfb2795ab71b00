// Package analyzer orchestrates one photo analysis end to end: local
// admission, credential lookup, the provider call, usage accounting, and
// the attempt log.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hoopscore/scorelens/internal/history"
	"github.com/hoopscore/scorelens/internal/usage"
	"github.com/hoopscore/scorelens/internal/vault"
	"github.com/hoopscore/scorelens/internal/vision"
)

// ErrBusy is returned when an analysis is already in flight. The pipeline
// is deliberately single-flight; queueing a second photo would only burn
// usage budget on a stale frame.
var ErrBusy = errors.New("an analysis is already in progress")

// Phase describes where the in-flight analysis currently is.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhasePreprocessing Phase = "preprocessing"
	PhaseRequesting    Phase = "requesting"
	PhaseRetrying      Phase = "retrying"
	PhaseParsing       Phase = "parsing"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
)

// Status is a snapshot of the pipeline for observers.
type Status struct {
	Phase     Phase     `json:"phase"`
	Attempt   int       `json:"attempt,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outcome is the user-facing result of one analysis. Exactly one of
// Reading (on success) or Code+Message (on failure) is meaningful.
type Outcome struct {
	OK            bool            `json:"ok"`
	Reading       *vision.Reading `json:"reading,omitempty"`
	Code          string          `json:"code,omitempty"`
	Message       string          `json:"message,omitempty"`
	NextAllowedAt *time.Time      `json:"next_allowed_at,omitempty"`
	RetryAfter    time.Duration   `json:"-"`
	Attempts      int             `json:"attempts"`
	Duration      time.Duration   `json:"-"`
}

// Analyzer runs the analysis pipeline. One Analyzer serves the whole
// process; concurrent Analyze calls beyond the first are rejected.
type Analyzer struct {
	limiter *usage.Limiter
	vault   vault.Vault
	client  *vision.Client
	history *history.Manager

	flight sync.Mutex // held for the duration of one Analyze

	mu        sync.Mutex
	status    Status
	listeners []func(Status)
}

// New wires the pipeline together. The vision client is built here so the
// per-attempt hook can feed the status phases.
func New(limiter *usage.Limiter, vlt vault.Vault, hist *history.Manager, opts vision.Options) *Analyzer {
	a := &Analyzer{
		limiter: limiter,
		vault:   vlt,
		history: hist,
		status:  Status{Phase: PhaseIdle, UpdatedAt: time.Now()},
	}
	opts.OnAttempt = a.attemptStarted
	opts.OnParsing = a.parsingStarted
	a.client = vision.NewClient(opts)
	return a
}

// OnStatus registers a listener invoked on every phase change.
func (a *Analyzer) OnStatus(fn func(Status)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Status returns the current pipeline snapshot.
func (a *Analyzer) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Analyze runs one photo through the pipeline. Context cancellation aborts
// the provider call and returns ctx.Err(); nothing is counted or logged
// for a cancelled run. Local refusals never touch the network.
func (a *Analyzer) Analyze(ctx context.Context, image []byte) (*Outcome, error) {
	if !a.flight.TryLock() {
		return nil, ErrBusy
	}
	defer a.flight.Unlock()

	start := time.Now()
	a.setPhase(PhasePreprocessing, 0, start)

	// Local admission first: a limit refusal must not cost a network call.
	if !a.limiter.CanCall() {
		next := a.limiter.NextAllowedAt()
		out := &Outcome{
			OK:            false,
			Code:          vision.KindRateLimitLocal.String(),
			Message:       limitMessage(next),
			NextAllowedAt: next,
			Duration:      time.Since(start),
		}
		a.finish(out, "")
		return out, nil
	}

	apiKey, err := a.vault.Retrieve()
	if err != nil {
		out := a.credentialOutcome(err, start)
		a.finish(out, "")
		return out, nil
	}
	if ferr := vault.ValidateFormat(apiKey); ferr != nil {
		out := &Outcome{
			OK:       false,
			Code:     vision.KindInvalidCredential.String(),
			Message:  "The stored API key looks malformed. Re-enter it in settings.",
			Duration: time.Since(start),
		}
		a.finish(out, "")
		return out, nil
	}

	a.setPhase(PhaseRequesting, 0, start)
	result, aerr := a.client.Analyze(ctx, image, apiKey)

	if isCancellation(aerr) {
		// Cancellation is not an outcome: no usage event, no log entry.
		a.setPhase(PhaseIdle, 0, start)
		return nil, aerr
	}

	if aerr != nil {
		out := a.failureOutcome(aerr, result, start)
		a.accountAndLog(out, result, "")
		return out, nil
	}

	out := &Outcome{
		OK:       true,
		Reading:  result.Reading,
		Attempts: result.Attempts,
		Duration: time.Since(start),
	}
	a.accountAndLog(out, result, result.MediaType)
	return out, nil
}

// attemptStarted feeds the vision client's per-attempt hook into the
// status phases. Attempt 2 onward means the first try failed.
func (a *Analyzer) attemptStarted(attempt int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	phase := PhaseRequesting
	if attempt > 1 {
		phase = PhaseRetrying
	}
	a.status.Phase = phase
	a.status.Attempt = attempt
	a.status.UpdatedAt = time.Now()
	a.notifyLocked()
}

// parsingStarted fires from the vision client right before it decodes a
// received response, so observers see the phase while it runs.
func (a *Analyzer) parsingStarted() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.status.Phase = PhaseParsing
	a.status.UpdatedAt = time.Now()
	a.notifyLocked()
}

// isCancellation reports whether the run was aborted by the caller. A
// classified error is always a real outcome: a definitive failure that
// raced a late cancel still owes its usage event. Per-attempt timeouts
// come back classified, so they never land here.
func isCancellation(err error) bool {
	if err == nil {
		return false
	}
	var classified *vision.Error
	if errors.As(err, &classified) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (a *Analyzer) setPhase(p Phase, attempt int, started time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.status = Status{Phase: p, Attempt: attempt, StartedAt: started, UpdatedAt: time.Now()}
	a.notifyLocked()
}

func (a *Analyzer) notifyLocked() {
	st := a.status
	for _, fn := range a.listeners {
		fn(st)
	}
}

// accountAndLog records the usage event when it is owed, writes the
// attempt log entry, and settles the terminal phase.
func (a *Analyzer) accountAndLog(out *Outcome, result *vision.Result, mediaType string) {
	if result != nil && result.Transmitted {
		// One transmitted request with a definitive outcome costs exactly
		// one usage event, success or not.
		if err := a.limiter.RecordCall(); err != nil {
			log.Printf("⚠️ [Analyzer] Failed to record usage event: %v", err)
		}
	}
	a.finish(out, mediaType)
}

// finish logs the attempt and settles the terminal phase.
func (a *Analyzer) finish(out *Outcome, mediaType string) {
	if a.history != nil {
		entry := &history.Entry{
			Status:     "failed",
			ErrorKind:  out.Code,
			MediaType:  mediaType,
			Attempts:   out.Attempts,
			DurationMs: out.Duration.Milliseconds(),
		}
		if out.OK {
			entry.Status = "success"
			entry.ErrorKind = ""
			if out.Reading != nil {
				entry.HomeScore = out.Reading.HomeScore
				entry.AwayScore = out.Reading.AwayScore
				entry.Confidence = out.Reading.Confidence
				entry.Period = out.Reading.Period
				entry.Clock = out.Reading.Clock
			}
		}
		if err := a.history.Record(entry); err != nil {
			log.Printf("⚠️ [Analyzer] Failed to log analysis attempt: %v", err)
		}
	}

	phase := PhaseFailed
	if out.OK {
		phase = PhaseDone
	}
	a.setPhase(phase, out.Attempts, time.Time{})
}

// credentialOutcome maps vault failures to user-facing outcomes.
func (a *Analyzer) credentialOutcome(err error, start time.Time) *Outcome {
	out := &Outcome{OK: false, Duration: time.Since(start)}
	if errors.Is(err, vault.ErrNoCredential) {
		out.Code = vision.KindNoCredential.String()
		out.Message = "No API key is configured. Add your Anthropic API key in settings."
		return out
	}
	log.Printf("⚠️ [Analyzer] Credential storage error: %v", err)
	out.Code = vision.KindNoCredential.String()
	out.Message = "Could not read the stored API key. Check secure storage and try again."
	return out
}

// failureOutcome maps classified client errors to user-facing outcomes.
func (a *Analyzer) failureOutcome(err error, result *vision.Result, start time.Time) *Outcome {
	out := &Outcome{OK: false, Duration: time.Since(start)}
	if result != nil {
		out.Attempts = result.Attempts
	}

	var classified *vision.Error
	if !errors.As(err, &classified) {
		out.Code = vision.KindNetworkTransient.String()
		out.Message = "Could not reach the vision service. Check your connection and retry."
		return out
	}

	out.Code = classified.Kind.String()
	switch classified.Kind {
	case vision.KindRateLimitRemote:
		out.RetryAfter = classified.RetryAfter
		if classified.RetryAfter > 0 {
			t := time.Now().Add(classified.RetryAfter)
			out.NextAllowedAt = &t
		}
		out.Message = "The vision service is rate limiting requests. Wait a moment and retry."
	case vision.KindRequestRejected:
		out.Message = fmt.Sprintf("The vision service rejected the request (status %d). Check that your API key is valid.", classified.Status)
	case vision.KindMalformedResponse:
		out.Message = "The vision service returned an unreadable answer. Try another photo."
	case vision.KindImageInvalid:
		out.Message = "That file does not look like a supported photo (JPEG, PNG, GIF, WebP)."
	default:
		out.Message = "Could not reach the vision service. Check your connection and retry."
	}
	return out
}

func limitMessage(next *time.Time) string {
	if next == nil {
		return "Usage limit reached. Try again shortly."
	}
	return fmt.Sprintf("Usage limit reached. Try again at %s.", next.Format(time.Kitchen))
}
