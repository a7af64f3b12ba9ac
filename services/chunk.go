package services

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// MinChunkBytes is the smallest budget SplitUTF8 accepts; smaller values are raised to it.
const MinChunkBytes = 500

// SplitUTF8 splits text into chunks of at most maxBytes UTF-8 bytes.
//
// Whitespace is collapsed, then sentences (ending in '.', '!', '?' or a line break)
// are packed greedily. A sentence that does not fit on its own is packed word by
// word, and a word that does not fit is cut on a rune boundary. Joining the chunks
// with single spaces gives back the whitespace-normalized text, except where a word
// had to be cut.
//
// The returned sequence can be ranged over any number of times.
func SplitUTF8(text string, maxBytes int) iter.Seq[string] {
	maxBytes = max(maxBytes, MinChunkBytes)
	return func(yield func(string) bool) {
		sentences := splitSentences(text)
		if len(sentences) == 0 {
			return
		}
		if whole := strings.Join(sentences, " "); len(whole) <= maxBytes {
			yield(whole)
			return
		}

		p := &packer{limit: maxBytes, yield: yield}
		for _, s := range sentences {
			if len(s) <= maxBytes {
				if !p.add(s) {
					return
				}
				continue
			}

			if !p.flush() {
				return
			}
			for _, w := range strings.Fields(s) {
				if len(w) <= maxBytes {
					if !p.add(w) {
						return
					}
					continue
				}
				if !p.flush() {
					return
				}
				for len(w) > 0 {
					n := cutPoint(w, maxBytes)
					if !yield(w[:n]) {
						return
					}
					w = w[n:]
				}
			}
			if !p.flush() {
				return
			}
		}
		p.flush()
	}
}

// splitSentences returns the sentences of text with whitespace normalized.
// A sentence ends at a line break or after a word ending in terminal punctuation.
func splitSentences(text string) []string {
	var (
		sentences []string
		words     []string
	)
	end := func() {
		if len(words) > 0 {
			sentences = append(sentences, strings.Join(words, " "))
			words = words[:0]
		}
	}
	for _, line := range strings.Split(text, "\n") {
		for _, w := range strings.Fields(line) {
			words = append(words, w)
			if strings.ContainsAny(w[len(w)-1:], ".!?") {
				end()
			}
		}
		end()
	}
	return sentences
}

// cutPoint returns the largest n <= limit such that s[:n] ends on a rune boundary.
func cutPoint(s string, limit int) int {
	if len(s) <= limit {
		return len(s)
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		// limit is smaller than the first rune; never happens with MinChunkBytes.
		_, n = utf8.DecodeRuneInString(s)
	}
	return n
}

type packer struct {
	limit int
	buf   strings.Builder
	yield func(string) bool
}

// add appends piece to the running chunk, emitting the chunk first if piece would not fit.
func (p *packer) add(piece string) bool {
	if p.buf.Len() > 0 && p.buf.Len()+1+len(piece) > p.limit {
		if !p.flush() {
			return false
		}
	}
	if p.buf.Len() > 0 {
		p.buf.WriteByte(' ')
	}
	p.buf.WriteString(piece)
	return true
}

func (p *packer) flush() bool {
	if p.buf.Len() == 0 {
		return true
	}
	s := p.buf.String()
	p.buf.Reset()
	return p.yield(s)
}
