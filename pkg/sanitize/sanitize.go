// Package sanitize separates model reasoning wrapped in think tags from the
// answer text the workflow acts on.
package sanitize

import "strings"

const (
	// OpenTag starts a reasoning segment.
	OpenTag = "<think>"
	// CloseTag ends a reasoning segment.
	CloseTag = "</think>"

	segmentSeparator = "\n\n"
)

// Strip removes every complete <think>...</think> pair from text. The trimmed
// inner texts are joined with a blank line into reasoning; cleaned is the rest,
// trimmed at both ends. Each opener pairs with the first closer after it. An
// opener without a closer and any closer without an opener before it are left
// in cleaned.
//
// Strip works on whole replies only, never on stream fragments.
func Strip(text string) (reasoning, cleaned string) {
	var segments []string
	work := text

	for {
		start := strings.Index(work, OpenTag)
		if start < 0 {
			break
		}
		rel := strings.Index(work[start+len(OpenTag):], CloseTag)
		if rel < 0 {
			break
		}
		end := start + len(OpenTag) + rel

		inner := strings.TrimSpace(work[start+len(OpenTag) : end])
		if inner != "" {
			segments = append(segments, inner)
		}
		work = work[:start] + work[end+len(CloseTag):]
	}

	return strings.Join(segments, segmentSeparator), strings.TrimSpace(work)
}

// Clean returns only the answer part of text.
func Clean(text string) string {
	_, cleaned := Strip(text)
	return cleaned
}

// HasOpenReasoning reports whether text ends inside a reasoning segment, i.e.
// the last opener has no closer after it. Display code uses it on partial
// streams to decide whether incoming text is still reasoning.
func HasOpenReasoning(text string) bool {
	open := strings.LastIndex(text, OpenTag)
	if open < 0 {
		return false
	}
	return !strings.Contains(text[open:], CloseTag)
}
