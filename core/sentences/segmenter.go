// Package sentences re-segments streamed text into complete sentences so
// that speech synthesis can start before generation finishes.
package sentences

import (
	"iter"
	"regexp"
	"strings"
)

// boundary matches sentence-ending punctuation followed by whitespace or the
// end of the buffer. Trailing whitespace belongs to the sentence it ends.
var boundary = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// Segmenter accumulates text fragments and releases complete sentences.
// It is not safe for concurrent use.
type Segmenter struct {
	buffer strings.Builder
}

// Push appends fragment and returns every sentence completed by it, in
// order. The text after the last boundary stays buffered.
func (s *Segmenter) Push(fragment string) []string {
	s.buffer.WriteString(fragment)
	text := s.buffer.String()

	matches := boundary.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	sentences := make([]string, 0, len(matches))
	consumed := 0
	for _, match := range matches {
		sentences = append(sentences, text[consumed:match[1]])
		consumed = match[1]
	}

	s.buffer.Reset()
	s.buffer.WriteString(text[consumed:])
	return sentences
}

// Flush returns the buffered remainder with surrounding whitespace trimmed,
// if anything but whitespace is left, and empties the buffer.
func (s *Segmenter) Flush() (string, bool) {
	remainder := strings.TrimSpace(s.buffer.String())
	s.buffer.Reset()
	return remainder, remainder != ""
}

// Buffered reports the text waiting for a boundary.
func (s *Segmenter) Buffered() string { return s.buffer.String() }

// Segment lazily turns a sequence of text fragments into a sequence of
// sentences. The remainder left when fragments run out is yielded last.
// The result is single-use whenever fragments is.
func Segment(fragments iter.Seq[string]) iter.Seq[string] {
	return func(yield func(string) bool) {
		var segmenter Segmenter
		for fragment := range fragments {
			for _, sentence := range segmenter.Push(fragment) {
				if !yield(sentence) {
					return
				}
			}
		}

		if remainder, ok := segmenter.Flush(); ok {
			yield(remainder)
		}
	}
}
