package chunking

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators are tried coarsest first. The empty separator splits into runes
// and always fits, which bounds the recursion.
var separators = []string{"\n\n", "\n", ".", " ", ""}

// Split partitions text into trimmed, non-blank chunks of at most chunkSize
// runes. When overlap > 0 every chunk after the first starts with the last
// overlap runes of the previous base chunk; the splitter reserves room for
// that prefix so the combined chunk still fits.
func Split(text string, chunkSize, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	s := &splitter{first: chunkSize, rest: chunkSize - overlap}
	s.split(text, separators)
	if len(s.chunks) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return withOverlap(s.chunks, overlap)
}

type splitter struct {
	first  int
	rest   int
	chunks []string
}

func (s *splitter) budget() int {
	if len(s.chunks) == 0 {
		return s.first
	}
	return s.rest
}

func (s *splitter) split(text string, seps []string) {
	sep, finer := seps[0], seps[1:]
	var buf strings.Builder
	bufLen := 0
	for _, unit := range splitUnits(text, sep) {
		n := utf8.RuneCountInString(unit)
		if bufLen+n <= s.budget() {
			buf.WriteString(unit)
			bufLen += n
			continue
		}
		if bufLen > 0 {
			s.flush(buf.String())
			buf.Reset()
			bufLen = 0
		}
		if n <= s.budget() {
			buf.WriteString(unit)
			bufLen = n
			continue
		}
		if len(finer) == 0 {
			s.flush(unit)
			continue
		}
		s.split(unit, finer)
	}
	if bufLen > 0 {
		s.flush(buf.String())
	}
}

func (s *splitter) flush(chunk string) {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return
	}
	s.chunks = append(s.chunks, chunk)
}

// splitUnits keeps each separator attached to the unit it terminates so that
// concatenating the units reproduces the input.
func splitUnits(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func withOverlap(chunks []string, overlap int) []string {
	if overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		out[i] = tail(chunks[i-1], overlap) + chunks[i]
	}
	return out
}

func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
