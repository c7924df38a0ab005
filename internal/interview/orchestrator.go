package interview

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mockmate/mockmate/internal/ai"
	"github.com/mockmate/mockmate/internal/logger"
)

// NoCodeSentinel is the code output reported when the candidate submitted no
// runnable code this turn.
const NoCodeSentinel = "No code provided for this turn."

const (
	contextTopK          = 3
	defaultMaxLogLength  = 200
	codeOutputSuffixMark = "[CODE OUTPUT]:"
)

// CodeRunner executes a candidate's snippet. Implementations never fail: any
// execution or transport problem is reported inside the returned string.
type CodeRunner interface {
	Run(ctx context.Context, code string) string
}

// ContextRetriever performs semantic lookup over the session's ingested
// resume.
type ContextRetriever interface {
	Query(sessionID, query string, k int) (string, error)
}

// Deps aggregates the collaborators injected into the Orchestrator.
type Deps struct {
	Runner    CodeRunner
	Retriever ContextRetriever
	Generator ai.Generator
	Logger    *zap.Logger
}

// Orchestrator drives one interview turn: code execution, context retrieval,
// prompt assembly, model call, transcript append. The step order is fixed;
// each step feeds the next.
type Orchestrator struct {
	runner    CodeRunner
	retriever ContextRetriever
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

// NewOrchestrator builds an Orchestrator from its dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Orchestrator{
		runner:    deps.Runner,
		retriever: deps.Retriever,
		generator: deps.Generator,
		logger:    log,
		maxLogLen: defaultMaxLogLength,
	}
}

// ProcessTurn runs one full turn for the session. On success the transcript
// gains exactly two entries and the turn counter advances by one. A model
// failure aborts the turn without touching the transcript; code execution
// failures degrade into the returned codeOutput string and never abort.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sess *Session, message, codeSnippet string) (reply string, codeOutput string, err error) {
	if sess == nil {
		return "", "", fmt.Errorf("session is required")
	}

	// Step 1: code execution. Blank snippets count as no code and never
	// reach the runner.
	codeOutput = NoCodeSentinel
	snippet := strings.TrimSpace(codeSnippet)
	if snippet != "" {
		codeOutput = o.runner.Run(ctx, codeSnippet)
		o.logger.Debug("executed code snippet",
			zap.String("session_id", sess.ID()),
			zap.String("output_preview", logger.TruncateForLog(codeOutput, o.maxLogLen)),
		)
	}

	// Step 2: context retrieval.
	resumeContext, err := o.retriever.Query(sess.ID(), message, contextTopK)
	if err != nil {
		return "", "", fmt.Errorf("retrieve resume context: %w", err)
	}

	// Step 3: instruction assembly, re-derived fresh every turn and never
	// stored in the transcript.
	instruction := BuildInstruction(sess.Role(), resumeContext, sess.TurnCount(), codeOutput)

	// Step 4: history plus the synthetic user entry.
	history := historyMessages(sess.Snapshot())
	userText := syntheticUserText(message, codeOutput)
	history = append(history, ai.Message{Role: ai.RoleUser, Text: userText})

	o.logger.Debug("invoking model",
		zap.String("session_id", sess.ID()),
		zap.Int("turn_count", sess.TurnCount()),
		zap.Int("history_length", len(history)),
		zap.Int("instruction_length", utf8.RuneCountInString(instruction)),
		zap.String("instruction_preview", logger.TruncateForLog(instruction, o.maxLogLen)),
	)

	// Step 5: the model call. A failure here is fatal to the turn and must
	// leave the transcript untouched.
	reply, err = o.generator.Generate(ctx, instruction, history)
	if err != nil {
		return "", "", fmt.Errorf("generate interviewer reply: %w", err)
	}

	o.logger.Debug("model replied",
		zap.String("session_id", sess.ID()),
		zap.Int("reply_length", utf8.RuneCountInString(reply)),
		zap.String("reply_preview", logger.TruncateForLog(reply, o.maxLogLen)),
	)

	// Step 6: atomic append of the pair, counter advance.
	userTurn := Turn{Speaker: SpeakerUser, Text: message, CodeOutput: codeOutput}
	if snippet != "" {
		userTurn.CodeSnippet = codeSnippet
	}
	sess.commit(userTurn, Turn{Speaker: SpeakerInterviewer, Text: reply})

	// Step 7.
	return reply, codeOutput, nil
}

// historyMessages converts the transcript into model messages, re-deriving
// the code-output suffix for user entries that carried one.
func historyMessages(transcript []Turn) []ai.Message {
	msgs := make([]ai.Message, 0, len(transcript)+1)
	for _, turn := range transcript {
		role := ai.RoleInterviewer
		text := turn.Text
		if turn.Speaker == SpeakerUser {
			role = ai.RoleUser
			text = syntheticUserText(turn.Text, turn.CodeOutput)
		}
		msgs = append(msgs, ai.Message{Role: role, Text: text})
	}
	return msgs
}

func syntheticUserText(message, codeOutput string) string {
	if strings.TrimSpace(codeOutput) == "" {
		return message
	}
	return fmt.Sprintf("%s \n %s %s", message, codeOutputSuffixMark, codeOutput)
}
