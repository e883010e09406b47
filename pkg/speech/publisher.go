package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/pkg/ports"
	"github.com/google/uuid"
)

// Publisher writes synthesized answers below a static directory.
type Publisher struct {
	synth       ports.Synthesizer
	dir         string
	defaultLang string
	logger      *slog.Logger
}

// NewPublisher stores audio in <staticDir>/audio.
func NewPublisher(synth ports.Synthesizer, staticDir, defaultLang string, logger *slog.Logger) *Publisher {
	if defaultLang == "" {
		defaultLang = "en"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		synth:       synth,
		dir:         filepath.Join(staticDir, "audio"),
		defaultLang: defaultLang,
		logger:      logger,
	}
}

// Publish synthesizes text and returns the URL path of the mp3 file.
func (p *Publisher) Publish(ctx context.Context, text string) (string, error) {
	lang := DetectLanguage(text, p.defaultLang)
	audio, err := p.synth.Synthesize(ctx, text, lang)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create audio directory: %w", err)
	}
	name := uuid.NewString() + ".mp3"
	if err := os.WriteFile(filepath.Join(p.dir, name), audio, 0644); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}

	p.logger.DebugContext(ctx, "audio published", "file", name, "lang", lang, "bytes", len(audio))
	return "/static/audio/" + name, nil
}
