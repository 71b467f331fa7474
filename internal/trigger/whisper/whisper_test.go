package whisper

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/hearken/internal/errors"
)

func TestNewRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := New("", "en")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNewMissingModel(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "ggml-missing.bin"), "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
}

func TestClosedTranscriber(t *testing.T) {
	t.Parallel()

	tr := &Transcriber{language: "en"}
	require.NoError(t, tr.Close())
	_, err := tr.Transcribe(context.Background(), make([]float32, SampleRate), SampleRate)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Transcribe(ctx, nil, SampleRate)
	assert.ErrorIs(t, err, context.Canceled)
}
