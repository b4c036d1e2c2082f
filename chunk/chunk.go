// Package chunk splits formatted text into delivery-sized pieces while
// keeping paragraph and sentence boundaries intact wherever possible.
package chunk

import "strings"

// Split breaks text into chunks of at most limit bytes. Text that already
// fits is returned as a single chunk. Longer text is packed greedily by
// paragraph (blank-line separated); a paragraph that alone exceeds the limit
// is packed by sentence instead. A single sentence longer than the limit is
// hard-wrapped at the limit, mid-word if it comes to that, because the
// platform rejects oversized messages outright.
func Split(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current string

	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		switch {
		case len(current)+len(para)+2 <= limit:
			if current == "" {
				current = para
			} else {
				current += "\n\n" + para
			}
		case len(para) > limit:
			flush()
			for _, sentence := range Sentences(para) {
				for len(sentence) > limit {
					flush()
					chunks = append(chunks, sentence[:limit])
					sentence = sentence[limit:]
				}
				if sentence == "" {
					continue
				}
				if current == "" {
					current = sentence
				} else if len(current)+len(sentence)+1 <= limit {
					current += " " + sentence
				} else {
					flush()
					current = sentence
				}
			}
		default:
			flush()
			current = para
		}
	}
	flush()
	return chunks
}

// Sentences splits text on sentence boundaries: a '.', '!' or '?' followed
// by whitespace ends a sentence. The terminator stays with its sentence and
// the separating whitespace is dropped.
func Sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			j := i + 1
			if j >= len(text) || !isSpace(text[j]) {
				continue
			}
			out = append(out, text[start:i+1])
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
