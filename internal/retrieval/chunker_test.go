package retrieval

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    int
	}{
		{name: "empty", text: "   ", size: 10, overlap: 2, want: 0},
		{name: "fits one chunk", text: "short text", size: 100, overlap: 10, want: 1},
		{name: "splits with overlap", text: strings.Repeat("a", 25), size: 10, overlap: 5, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := splitText(tt.text, tt.size, tt.overlap)
			if len(got) != tt.want {
				t.Fatalf("expected %d chunks, got %d: %q", tt.want, len(got), got)
			}
		})
	}
}

func TestSplitTextOverlapCarriesBoundaryText(t *testing.T) {
	t.Parallel()

	chunks := splitText("abcdefghij", 6, 3)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[1], "def") {
		t.Fatalf("second chunk should start inside the first: %q", chunks[1])
	}
}

func TestSplitTextInvalidOverlapDisablesIt(t *testing.T) {
	t.Parallel()

	chunks := splitText(strings.Repeat("b", 20), 10, 10)
	if len(chunks) != 2 {
		t.Fatalf("overlap >= size must fall back to disjoint chunks, got %d", len(chunks))
	}
}
