package interview

import (
	"strings"
	"testing"
)

func TestBuildInstructionSubstitutesAllSlots(t *testing.T) {
	t.Parallel()

	got := BuildInstruction("Data Engineer", "ten years of Spark", 2, "42")

	for _, want := range []string{"Data Engineer", "ten years of Spark", "Question 2/5", "42"} {
		if !strings.Contains(got, want) {
			t.Fatalf("instruction missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "{{") {
		t.Fatalf("unsubstituted placeholder left in instruction:\n%s", got)
	}
}

func TestBuildInstructionStageMarker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		turnCount int
		want      string
	}{
		{name: "first turn", turnCount: 0, want: "Question 0/5"},
		{name: "mid interview", turnCount: 3, want: "Question 3/5"},
		{name: "cap is cosmetic", turnCount: 7, want: "Question 7/5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := BuildInstruction("Engineer", "ctx", tt.turnCount, "out")
			if !strings.Contains(got, tt.want) {
				t.Fatalf("expected stage marker %q in:\n%s", tt.want, got)
			}
		})
	}
}

func TestBuildInstructionEmptyCodeOutputReadsNA(t *testing.T) {
	t.Parallel()

	got := BuildInstruction("Engineer", "ctx", 0, "  ")
	if !strings.Contains(got, "N/A") {
		t.Fatalf("empty code output should render as N/A:\n%s", got)
	}
}
