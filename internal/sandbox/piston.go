package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const (
	defaultAPIURL   = "https://emkc.org/api/v2/piston"
	defaultLanguage = "python"
	contentType     = "application/json"

	// ExecutionErrorMessage is reported when the service answered but no run
	// result was present in the response.
	ExecutionErrorMessage = "Error: Could not execute code."
)

// Client talks to a Piston-compatible code execution service. Calls are
// single-attempt with a fixed timeout; every failure degrades into a
// human-readable string so an interview turn never aborts on candidate code.
type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	APIURL     string
	Language   string
}

type executeRequest struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Files    []executeFile `json:"files"`
}

type executeFile struct {
	Content string `json:"content"`
}

type runResult struct {
	Stdout string `mapstructure:"stdout"`
	Stderr string `mapstructure:"stderr"`
}

// New creates a Client against the default public Piston endpoint.
func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		APIURL:   defaultAPIURL,
		Language: defaultLanguage,
	}
}

// Run executes the snippet and returns the trimmed combined stdout+stderr.
// It never returns an error: failures become descriptive strings.
func (c *Client) Run(ctx context.Context, code string) string {
	out, err := c.execute(ctx, code, c.Language)
	if err != nil {
		c.logger.Debug("code execution failed", zap.Error(err))
		return fmt.Sprintf("Execution failed: %s", err)
	}
	return out
}

func (c *Client) execute(ctx context.Context, code, language string) (string, error) {
	payload := executeRequest{
		Language: language,
		Version:  "*",
		Files:    []executeFile{{Content: code}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal execute request: %w", err)
	}

	url := fmt.Sprintf("%s/execute", c.APIURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("make request", zap.String("url", url), zap.String("language", language))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("decode execute response: %w", err)
	}

	// An absent run key is the service's way of signaling the code never
	// ran at all.
	rawRun, ok := raw["run"]
	if !ok {
		return ExecutionErrorMessage, nil
	}

	var run runResult
	if err := mapstructure.Decode(rawRun, &run); err != nil {
		return "", fmt.Errorf("decode run result: %w", err)
	}

	return strings.TrimSpace(run.Stdout + run.Stderr), nil
}
