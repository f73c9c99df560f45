// Package sanitize filters credentials out of event payloads before they
// reach the event sink. It is distinct from internal/logging's
// SanitizingHandler: that one redacts slog attributes process-wide, this one
// is a pure function over the map-shaped event payloads the core emits,
// grounded on the same substring-redaction idea and the teacher's
// internal/security regex-compilation style.
package sanitize

import (
	"path/filepath"
	"regexp"
)

// redactedFields are payload keys replaced outright with [REDACTED].
var redactedFields = map[string]bool{
	"passphrase": true,
	"password":   true,
}

// basenameFields are payload keys replaced with their filepath.Base, so a
// key path's directory structure never leaves the process.
var basenameFields = map[string]bool{
	"privateKeyPath": true,
}

// secretPattern pairs a compiled matcher with the literal text that
// replaces a match. The replacement is a fixed string, never built from
// the match itself, so a captured secret can never leak back out through
// its own redaction.
type secretPattern struct {
	re          *regexp.Regexp
	replacement string
}

// secretPatterns cover the password/token/apikey/AWS-key/bearer families
// spec.md §4.5 names. Compiled once at package init; a pattern that fails
// to compile here is a programmer error caught at test time, not a
// runtime condition.
var secretPatterns = []secretPattern{
	{regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`), "password=[REDACTED]"},
	{regexp.MustCompile(`(?i)token\s*[:=]\s*\S+`), "token=[REDACTED]"},
	{regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*\S+`), "apikey=[REDACTED]"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "aws_key=[REDACTED]"},
	{regexp.MustCompile(`(?i)bearer\s+\S+`), "bearer=[REDACTED]"},
}

// Sanitizer redacts credential-shaped fields from event payloads before
// they're handed to whatever sink is watching the event stream. It never
// touches the Result/Info values returned directly to a caller — only the
// out-of-band event view.
type Sanitizer struct {
	extra          []*regexp.Regexp
	includeOutput  bool
	outputMaxBytes int
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithExtraPatterns compiles additional redaction regexes, silently
// skipping any that fail to compile — matching spec.md §4.5's "invalid
// patterns skipped" and the teacher's CommandFilter compile-once approach,
// except here a bad pattern degrades rather than fails construction, since
// dropping the whole event sink over one bad regex would be worse than
// under-redacting for it alone.
func WithExtraPatterns(patterns []string) Option {
	return func(s *Sanitizer) {
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				continue
			}
			s.extra = append(s.extra, re)
		}
	}
}

// WithOutputCapture allows stdout/stderr fields through, truncated to
// maxBytes with a "… [truncated]" sentinel. Without this option stdout/
// stderr fields are omitted entirely, per spec.md §4.5.
func WithOutputCapture(maxBytes int) Option {
	return func(s *Sanitizer) {
		s.includeOutput = true
		s.outputMaxBytes = maxBytes
	}
}

// New constructs a Sanitizer. With no options, output fields are omitted
// and only the fixed field/pattern rules apply.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RedactCommand applies the same command-string scrubbing Sanitize uses for
// the "command" field, for callers that only have a bare string (e.g. a log
// line) rather than a full event payload.
func (s *Sanitizer) RedactCommand(cmd string) string {
	return s.redactCommandString(cmd)
}

// Sanitize returns a redacted copy of payload; the input map is never
// mutated.
func (s *Sanitizer) Sanitize(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch {
		case k == "stdout" || k == "stderr":
			if s.includeOutput {
				if str, ok := v.(string); ok {
					out[k] = s.truncateOutput(s.redactCommandString(str))
				} else {
					out[k] = v
				}
			}
			// omitted entirely when output capture isn't enabled
		case redactedFields[k]:
			out[k] = "[REDACTED]"
		case basenameFields[k]:
			if str, ok := v.(string); ok {
				out[k] = filepath.Base(str)
			} else {
				out[k] = v
			}
		case k == "command":
			if str, ok := v.(string); ok {
				out[k] = s.redactCommandString(str)
			} else {
				out[k] = v
			}
		default:
			out[k] = v
		}
	}
	return out
}

func (s *Sanitizer) redactCommandString(cmd string) string {
	for _, p := range secretPatterns {
		cmd = p.re.ReplaceAllString(cmd, p.replacement)
	}
	for _, re := range s.extra {
		cmd = re.ReplaceAllString(cmd, "[REDACTED]")
	}
	return cmd
}

func (s *Sanitizer) truncateOutput(str string) string {
	if s.outputMaxBytes <= 0 || len(str) <= s.outputMaxBytes {
		return str
	}
	return str[:s.outputMaxBytes] + "… [truncated]"
}
