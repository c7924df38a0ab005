package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Model is the slice of the Gemini client the speech service depends on.
type Model interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Audio is the result of a synthesis call. Degraded marks the case where the
// speech backend failed and an empty placeholder file was written instead, so
// the turn could proceed without a voice track.
type Audio struct {
	Path     string
	Degraded bool
}

// Service converts between audio files and text via the speech model.
type Service struct {
	model  Model
	logger *zap.Logger
}

// NewService builds a Service around the given model.
func NewService(model Model, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{model: model, logger: logger}
}

// Transcribe converts the audio file at path to text. Failures propagate to
// the caller: a lost candidate answer must be reported, not papered over.
func (s *Service) Transcribe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}

	text, err := s.model.Transcribe(ctx, data, mimeTypeFor(path))
	if err != nil {
		return "", fmt.Errorf("transcribe %q: %w", filepath.Base(path), err)
	}

	return strings.TrimSpace(text), nil
}

// Synthesize renders the text to a WAV file at path. When the speech backend
// fails, an empty file is written and the returned Audio is marked Degraded;
// only filesystem problems surface as errors.
func (s *Service) Synthesize(ctx context.Context, text, path string) (*Audio, error) {
	pcm, err := s.model.Synthesize(ctx, text)
	if err != nil {
		s.logger.Warn("speech synthesis failed, writing empty audio file",
			zap.String("path", path),
			zap.Error(err),
		)
		if werr := os.WriteFile(path, nil, 0o644); werr != nil {
			return nil, fmt.Errorf("write placeholder audio file: %w", werr)
		}
		return &Audio{Path: path, Degraded: true}, nil
	}

	if err := os.WriteFile(path, wrapPCM(pcm), 0o644); err != nil {
		return nil, fmt.Errorf("write audio file: %w", err)
	}

	return &Audio{Path: path}, nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mp3"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".m4a", ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}
