package vault

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// Vendor-prefixed token shape: literal prefix, hyphen-delimited
	// version tag, then the secret body.
	keyPrefix    = "sk-ant-"
	minKeyLength = 40
	minSuffixLen = 24
)

// suffixPattern restricts the secret body after the version tag.
var (
	versionPattern = regexp.MustCompile(`^[a-z0-9]+$`)
	suffixPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// FormatError reports why a credential failed format validation. It is a
// distinct failure from storage-mechanism errors.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid credential format: %s", e.Reason)
}

// ValidateFormat checks a credential against the vendor token contract:
// "sk-ant-" prefix, a version tag, and a minimum-length restricted-charset
// suffix. It never includes the candidate value in the returned error.
func ValidateFormat(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	if strings.TrimSpace(secret) != secret {
		return &FormatError{Reason: "leading or trailing whitespace"}
	}
	if !strings.HasPrefix(secret, keyPrefix) {
		return &FormatError{Reason: fmt.Sprintf("missing %q prefix", keyPrefix)}
	}
	if len(secret) < minKeyLength {
		return &FormatError{Reason: fmt.Sprintf("shorter than %d characters", minKeyLength)}
	}

	rest := secret[len(keyPrefix):]
	tag, suffix, found := strings.Cut(rest, "-")
	if !found || tag == "" {
		return &FormatError{Reason: "missing version tag"}
	}
	if !versionPattern.MatchString(tag) {
		return &FormatError{Reason: "malformed version tag"}
	}
	if len(suffix) < minSuffixLen {
		return &FormatError{Reason: fmt.Sprintf("secret body shorter than %d characters", minSuffixLen)}
	}
	if !suffixPattern.MatchString(suffix) {
		return &FormatError{Reason: "secret body contains disallowed characters"}
	}
	return nil
}
