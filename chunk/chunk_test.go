package chunk

import (
	"strings"
	"testing"
)

func TestSplitShortTextReturnsSingleChunk(t *testing.T) {
	texts := []string{"hello", "one. two. three.", strings.Repeat("a", 100)}
	for _, text := range texts {
		got := Split(text, 100)
		if len(got) != 1 || got[0] != text {
			t.Errorf("Split(%q, 100) = %v, want [%q]", text, got, text)
		}
	}
}

func TestSplitEmptyTextYieldsNoChunks(t *testing.T) {
	if got := Split("", 100); len(got) != 0 {
		t.Errorf("Split(\"\", 100) = %v, want none", got)
	}
}

func TestSplitRespectsLimit(t *testing.T) {
	texts := []string{
		strings.Repeat("First sentence here. Second one follows! Third? ", 40),
		strings.Repeat("para one\n\npara two is a bit longer\n\n", 30),
		strings.Repeat("x", 500),
		"short\n\n" + strings.Repeat("wordswithoutanyboundary", 20) + "\n\nshort again",
	}
	for _, text := range texts {
		for _, limit := range []int{50, 100, 1024} {
			for i, c := range Split(text, limit) {
				if len(c) > limit {
					t.Errorf("limit %d: chunk %d has length %d", limit, i, len(c))
				}
				if c == "" {
					t.Errorf("limit %d: chunk %d is empty", limit, i)
				}
			}
		}
	}
}

func TestSplitPreservesParagraphs(t *testing.T) {
	paras := []string{
		"First paragraph with some words.",
		"Second paragraph, also modest.",
		"Third paragraph closes it out.",
	}
	text := strings.Join(paras, "\n\n")
	chunks := Split(text, 70)

	joined := strings.Join(chunks, "\n\n")
	if joined != text {
		t.Errorf("rejoined chunks differ from input:\n%q\nwant\n%q", joined, text)
	}
	for _, c := range chunks {
		for _, p := range strings.Split(c, "\n\n") {
			found := false
			for _, orig := range paras {
				if p == orig {
					found = true
				}
			}
			if !found {
				t.Errorf("paragraph split mid-way: %q", p)
			}
		}
	}
}

func TestSplitOversizedParagraphBreaksOnSentences(t *testing.T) {
	text := "One short sentence. Another short sentence! A third short one? And a fourth to finish."
	chunks := Split(text, 45)
	for _, c := range chunks {
		if len(c) > 45 {
			t.Errorf("chunk exceeds limit: %q", c)
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Errorf("chunk has stray whitespace: %q", c)
		}
	}
	rejoined := strings.Join(chunks, " ")
	if rejoined != text {
		t.Errorf("sentence content lost:\n%q\nwant\n%q", rejoined, text)
	}
}

func TestSplitHardWrapsGiantSentence(t *testing.T) {
	text := strings.Repeat("z", 250)
	chunks := Split(text, 100)
	var total int
	for _, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk exceeds limit: %d bytes", len(c))
		}
		total += len(c)
	}
	if total != 250 {
		t.Errorf("hard wrap dropped bytes: got %d, want 250", total)
	}
}

func TestSplitIdempotent(t *testing.T) {
	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, strings.Repeat("Sentence in a paragraph. ", i+1))
	}
	text := strings.TrimSpace(strings.Join(paras, "\n\n"))

	first := Split(text, 200)
	second := Split(strings.Join(first, "\n\n"), 200)
	if len(first) != len(second) {
		t.Fatalf("re-chunking changed chunk count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs after re-chunking", i)
		}
	}
}

func TestSentences(t *testing.T) {
	got := Sentences("First one. Second two! Third three? No terminator")
	want := []string{"First one.", "Second two!", "Third three?", "No terminator"}
	if len(got) != len(want) {
		t.Fatalf("Sentences returned %d parts, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSentencesKeepsAbbreviationGlue(t *testing.T) {
	// A terminator not followed by whitespace does not end a sentence.
	got := Sentences("Version 1.5 shipped. Done.")
	if len(got) != 2 || got[0] != "Version 1.5 shipped." {
		t.Errorf("unexpected split: %v", got)
	}
}
