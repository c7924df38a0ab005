package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mockmate/mockmate/internal/interview"
	"github.com/mockmate/mockmate/internal/logger"
	"github.com/mockmate/mockmate/internal/resume"
	"github.com/mockmate/mockmate/internal/retrieval"
)

// codeMarker switches the console into snippet-collection mode; the snippet
// ends with a single "." line.
const codeMarker = "\\code"

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run a terminal interview against a local resume file",
	Run: func(cmd *cobra.Command, _ []string) {
		console(cmd)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)

	consoleCmd.Flags().StringP("resume", "r", "", "path to the candidate's resume (.pdf, .txt or .md)")
	consoleCmd.Flags().String("role", "", "candidate role for this interview")
}

func console(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	role := cmd.Flag("role").Value.String()
	if role == "" {
		role = config.Interview.Role
	}

	client, err := newGeminiClient(ctx, config.AI.Gemini)
	if err != nil {
		logger.Fatal("building gemini client", zap.Error(err))
	}

	store := retrieval.NewStore(logger)
	orchestrator := newOrchestrator(config, client, store, logger)
	sess := interview.NewSession(role)

	if path := cmd.Flag("resume").Value.String(); path != "" {
		text, err := resume.ExtractText(path)
		if err != nil {
			logger.Fatal("reading resume", zap.Error(err), zap.String("path", path))
		}
		if err := store.Ingest(sess.ID(), text); err != nil {
			logger.Fatal("indexing resume", zap.Error(err))
		}
	} else {
		logger.Warn("no resume provided, the interviewer has no candidate context")
	}

	fmt.Printf("Interview for %s. Type %s to submit a snippet, 'exit' to finish.\n\n", role, codeMarker)

	prompt := promptui.Prompt{Label: "You"}

	for {
		answer, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return
			}
			logger.Fatal("reading answer", zap.Error(err))
		}

		if trimmed := strings.TrimSpace(answer); trimmed == "exit" || trimmed == "quit" {
			fmt.Printf("\nInterview finished after %d turns.\n", sess.TurnCount())
			return
		}

		var snippet string
		if strings.TrimSpace(answer) == codeMarker {
			answer, snippet, err = collectSnippet()
			if err != nil {
				logger.Fatal("reading snippet", zap.Error(err))
			}
		}

		reply, codeOutput, err := orchestrator.ProcessTurn(ctx, sess, answer, snippet)
		if err != nil {
			logger.Error("turn failed", zap.Error(err))
			continue
		}

		if snippet != "" {
			fmt.Printf("\n[output] %s\n", codeOutput)
		}
		fmt.Printf("\nInterviewer: %s\n\n", reply)
	}
}

// collectSnippet gathers a description line and then snippet lines until a
// lone "." terminator.
func collectSnippet() (message, snippet string, err error) {
	descPrompt := promptui.Prompt{Label: "Describe your code"}
	message, err = descPrompt.Run()
	if err != nil {
		return "", "", err
	}

	fmt.Println("Enter code, finish with a single '.' line:")

	var lines []string
	linePrompt := promptui.Prompt{Label: ">"}
	for {
		line, err := linePrompt.Run()
		if err != nil {
			return "", "", err
		}
		if strings.TrimSpace(line) == "." {
			break
		}
		lines = append(lines, line)
	}

	return message, strings.Join(lines, "\n"), nil
}
