package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// readingPayload is the JSON shape the extraction prompt asks for.
// Pointer fields keep "absent" distinct from zero values.
type readingPayload struct {
	HomeScore  *json.Number `json:"home_score"`
	AwayScore  *json.Number `json:"away_score"`
	Period     *string      `json:"period"`
	Clock      *string      `json:"clock"`
	Confidence *float64     `json:"confidence"`
	Notes      *string      `json:"notes"`
}

// parseResponse mines a provider response body for the embedded reading.
// The envelope's first text-typed content element holds model prose that
// wraps the JSON payload.
func parseResponse(body []byte) (*Reading, error) {
	if !gjson.ValidBytes(body) {
		return nil, newError(KindMalformedResponse, fmt.Errorf("response is not valid JSON"))
	}

	text := gjson.GetBytes(body, `content.#(type=="text").text`)
	if !text.Exists() || text.String() == "" {
		return nil, newError(KindMalformedResponse, fmt.Errorf("no text content in response envelope"))
	}

	return parseReadingText(text.String())
}

// parseReadingText extracts and decodes the JSON object embedded in
// free-form model output.
func parseReadingText(text string) (*Reading, error) {
	payload, err := extractEmbeddedJSON(text)
	if err != nil {
		return nil, err
	}

	var p readingPayload
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, newError(KindMalformedResponse, fmt.Errorf("embedded payload does not decode: %w", err))
	}

	reading := &Reading{
		HomeScore: sanitizeScore(p.HomeScore),
		AwayScore: sanitizeScore(p.AwayScore),
	}
	if p.Period != nil {
		reading.Period = *p.Period
	}
	if p.Clock != nil {
		reading.Clock = *p.Clock
	}
	if p.Notes != nil {
		reading.Notes = *p.Notes
	}
	if p.Confidence != nil {
		c := clampConfidence(*p.Confidence)
		reading.Confidence = &c
	}

	return reading, nil
}

// extractEmbeddedJSON locates the substring between the first '{' and the
// last '}', tolerating leading/trailing commentary from the model.
func extractEmbeddedJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", newError(KindMalformedResponse, fmt.Errorf("no JSON object located in response text"))
	}
	return text[start : end+1], nil
}

// sanitizeScore converts a decoded score, dropping the field (nil) when
// it is negative or not an integer rather than invalidating the whole
// reading.
func sanitizeScore(n *json.Number) *int {
	if n == nil {
		return nil
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return nil
	}
	score := int(v)
	return &score
}

// clampConfidence clamps an advisory confidence into [0,1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
