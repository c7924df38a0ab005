package interview

import (
	"fmt"
	"strings"

	_ "embed"
)

//go:embed prompt.md
var promptTemplate string

// questionDisplayCap is the denominator of the stage marker. It is purely
// cosmetic: the orchestrator never stops the interview when the counter
// passes it.
const questionDisplayCap = 5

// BuildInstruction renders the interviewer system instruction for one turn.
// The stage marker counts completed interviewer turns, so the very first turn
// reads "Question 0/5".
func BuildInstruction(role, context string, turnCount int, codeOutput string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "You are a technical interviewer for a {{ROLE}} position.\nResume: {{CONTEXT}}\nState: {{STAGE}}\nCode output: {{CODE_OUTPUT}}"
	}

	if strings.TrimSpace(codeOutput) == "" {
		codeOutput = "N/A"
	}

	instruction := strings.ReplaceAll(template, "{{ROLE}}", role)
	instruction = strings.ReplaceAll(instruction, "{{CONTEXT}}", context)
	instruction = strings.ReplaceAll(instruction, "{{STAGE}}", stageMarker(turnCount))
	instruction = strings.ReplaceAll(instruction, "{{CODE_OUTPUT}}", codeOutput)

	return strings.TrimSpace(instruction)
}

func stageMarker(turnCount int) string {
	return fmt.Sprintf("Question %d/%d", turnCount, questionDisplayCap)
}
