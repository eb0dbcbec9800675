// Package sanitize reduces agent-authored email content to a message fit for
// the chat channel: reply history, signatures, legal boilerplate, and webmail
// artifacts are removed and the result is capped to the channel limit.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxRunes stays a few hundred characters under the WhatsApp
	// message limit so added context never pushes a send over it.
	DefaultMaxRunes = 3500
	// DefaultPlaceholder is returned when nothing survives the pipeline.
	// The transport rejects empty bodies, so this is never "".
	DefaultPlaceholder = "[no text content]"
	// TruncationMarker terminates a hard-capped message.
	TruncationMarker = " […]"
)

var (
	quoteLineRe    = regexp.MustCompile(`^\s*>`)
	wroteLineRe    = regexp.MustCompile(`(?i)^on .{0,120}wrote\s*:?\s*$`)
	forwardHeadRe  = regexp.MustCompile(`^(?:From|Sent|To|Subject):\s`)
	horizRuleRe    = regexp.MustCompile(`^[\x{2014}_-]{10,}\s*$`)
	sigDelimiterRe = regexp.MustCompile(`^--\s*$`)
	contactLineRe  = regexp.MustCompile(`(?i)^\s*(?:t|tel|telephone|phone|p|m|mob|mobile|f|fax|e|email|e-mail|w|web|www|skype)\s*[.:|]\s*\S`)
	imageTokenRe   = regexp.MustCompile(`(?i)\[(?:image|inline image|cid)[^\]\n]*\]`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
)

// legalPhrases mark the start of confidentiality and company boilerplate.
// Matching is case-insensitive and per line.
var legalPhrases = []string{
	"this email and any attachments",
	"this e-mail and any attachments",
	"confidentiality notice",
	"intended recipient",
	"intended solely for",
	"registered address",
	"registered office",
	"registered in england",
	"company registration",
	"disclaimer:",
}

// Sanitizer holds the pipeline limits. The zero value is not usable; use New.
type Sanitizer struct {
	maxRunes    int
	placeholder string
}

// New creates a Sanitizer. Non-positive maxRunes or an empty placeholder
// fall back to the package defaults.
func New(maxRunes int, placeholder string) *Sanitizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	if strings.TrimSpace(placeholder) == "" {
		placeholder = DefaultPlaceholder
	}
	return &Sanitizer{maxRunes: maxRunes, placeholder: placeholder}
}

// Clean runs the full reduction pipeline. It is total and idempotent:
// malformed input yields the placeholder, and cleaning already-clean text is
// a no-op. Quote-stripping runs before the "wrote:" truncation because
// quoted lines can contain false-positive matches, and all truncation rules
// run before whitespace collapsing so separators are still recognizable.
func (s *Sanitizer) Clean(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if quoteLineRe.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	cut := len(kept)
	for i, line := range kept {
		if s.isBoundary(line) {
			cut = i
			break
		}
	}
	kept = kept[:cut]

	text = strings.Join(kept, "\n")
	text = imageTokenRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	text = s.capLength(text)

	if text == "" {
		return s.placeholder
	}
	return text
}

// isBoundary reports whether a line starts content that must not reach the
// chat channel: reply attribution, forwarded headers, signature separators,
// contact cards, or legal boilerplate.
func (s *Sanitizer) isBoundary(line string) bool {
	trimmed := strings.TrimSpace(line)
	if wroteLineRe.MatchString(trimmed) {
		return true
	}
	if forwardHeadRe.MatchString(trimmed) {
		return true
	}
	if horizRuleRe.MatchString(trimmed) || sigDelimiterRe.MatchString(line) {
		return true
	}
	if len(trimmed) < 80 && contactLineRe.MatchString(trimmed) {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range legalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (s *Sanitizer) capLength(text string) string {
	if utf8.RuneCountInString(text) <= s.maxRunes {
		return text
	}
	budget := s.maxRunes - utf8.RuneCountInString(TruncationMarker)
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:budget])) + TruncationMarker
}
