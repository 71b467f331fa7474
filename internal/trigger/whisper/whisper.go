// Package whisper transcribes analysis windows with whisper.cpp so wake
// words can be matched lexically.
package whisper

import (
	"context"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/trigger"
)

// SampleRate is the input rate whisper.cpp expects.
const SampleRate = 16000

const defaultLanguage = "en"

// Transcriber implements trigger.Transcriber. The model is loaded once;
// each call creates its own context, and calls are serialized to bound
// memory use.
type Transcriber struct {
	mu       sync.Mutex
	model    whisperlib.Model
	language string
}

var _ trigger.Transcriber = (*Transcriber)(nil)

// New loads the model at modelPath.
func New(modelPath, language string) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.Newf("whisper model path is empty").
			Component("trigger.whisper").
			Category(errors.CategoryConfiguration).
			Build()
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("trigger.whisper").
			Category(errors.CategoryModelLoad).
			Context("model_path", modelPath).
			Build()
	}
	if language == "" {
		language = defaultLanguage
	}
	GetLogger().Info("whisper model loaded",
		logger.String("model", modelPath),
		logger.String("language", language))
	return &Transcriber{model: model, language: language}, nil
}

// Close releases the model.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// Transcribe returns the text spoken in samples.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	samples = audiocore.Resample(samples, sampleRate, SampleRate)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return "", errors.Newf("transcriber closed").
			Component("trigger.whisper").
			Category(errors.CategoryState).
			Build()
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", transcribeError(err, "create_context")
	}
	if err := wctx.SetLanguage(t.language); err != nil {
		GetLogger().Warn("failed to set language, using model default",
			logger.String("language", t.language),
			logger.Error(err))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", transcribeError(err, "process")
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", transcribeError(err, "next_segment")
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func transcribeError(err error, op string) error {
	return errors.New(err).
		Component("trigger.whisper").
		Category(errors.CategoryMatching).
		Context("operation", op).
		Build()
}

// GetLogger returns the package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("trigger").Module("whisper")
}
