package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/mockmate/mockmate/internal/ai"
)

const (
	defaultChatModel   = "gemini-2.5-flash"
	defaultSpeechModel = "gemini-2.5-flash-preview-tts"
	defaultVoice       = "Aoede"

	transcribeInstruction = "Transcribe this audio recording verbatim. Return only the spoken text, nothing else."
)

var chatTemperature = float32(0.6)

// modelCaller is the slice of *genai.Models the client depends on, kept as an
// interface so tests can stub the API.
type modelCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client wraps the Google GenAI client for chat, transcription and speech
// synthesis against the Gemini API backend.
type Client struct {
	models      modelCaller
	chatModel   string
	speechModel string
	voice       string
}

// Option adjusts optional Client settings.
type Option func(*Client)

// WithSpeechModel overrides the model used for synthesis.
func WithSpeechModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.speechModel = model
		}
	}
}

// WithVoice overrides the prebuilt voice used for synthesis.
func WithVoice(voice string) Option {
	return func(c *Client) {
		if voice = strings.TrimSpace(voice); voice != "" {
			c.voice = voice
		}
	}
}

// New creates a Client configured for the Gemini API backend.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultChatModel
	}

	c := &Client{
		models:      client.Models,
		chatModel:   model,
		speechModel: defaultSpeechModel,
		voice:       defaultVoice,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Generate sends the instruction and conversation to Gemini and returns the
// model's reply text. It implements ai.Generator.
func (c *Client) Generate(ctx context.Context, instruction string, history []ai.Message) (string, error) {
	if c == nil || c.models == nil {
		return "", errors.New("gemini client is not initialized")
	}

	if len(history) == 0 {
		return "", errors.New("conversation must not be empty")
	}

	config := &genai.GenerateContentConfig{
		Temperature: &chatTemperature,
	}
	if instruction = strings.TrimSpace(instruction); instruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: instruction}},
		}
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := genai.RoleUser
		if msg.Role == ai.RoleInterviewer {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Text}},
		})
	}

	resp, err := c.models.GenerateContent(ctx, c.chatModel, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	output := collectText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

// Transcribe converts the provided audio payload to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if c == nil || c.models == nil {
		return "", errors.New("gemini client is not initialized")
	}

	if len(audio) == 0 {
		return "", errors.New("audio payload must not be empty")
	}

	if mimeType = strings.TrimSpace(mimeType); mimeType == "" {
		mimeType = "audio/wav"
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: audio}},
			{Text: transcribeInstruction},
		},
	}}

	resp, err := c.models.GenerateContent(ctx, c.chatModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return "", errors.New("gemini api returned empty transcript")
	}

	return text, nil
}

// Synthesize converts text into raw PCM audio bytes using the speech model.
// The returned samples are 16-bit little-endian mono at 24kHz.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c == nil || c.models == nil {
		return nil, errors.New("gemini client is not initialized")
	}

	if text = strings.TrimSpace(text); text == "" {
		return nil, errors.New("text must not be empty")
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.voice},
			},
		},
	}

	resp, err := c.models.GenerateContent(ctx, c.speechModel, genai.Text(text), config)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			if len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}

	return nil, errors.New("gemini api returned no audio data")
}

// Model returns the configured chat model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.chatModel
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
