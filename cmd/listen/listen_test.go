package listen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/hearken/internal/audiocore/sources/synthetic"
	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/trigger"
)

func TestBuildClassifier(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	c, closeFn, err := buildClassifier(s)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &trigger.RuleClassifier{}, c)

	s.Trigger.Classifier = "neural"
	_, _, err = buildClassifier(s)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	s.Trigger.Classifier = "rules"
	s.Trigger.Transcriber = "vosk"
	_, _, err = buildClassifier(s)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	s.Trigger.Transcriber = "whisper"
	_, _, err = buildClassifier(s)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), "missing model path")
}

func TestBuildSource(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	s.Audio = conf.AudioSettings{
		Source:     "synthetic",
		SampleRate: 16000,
		Synthetic:  conf.SyntheticSettings{Signal: synthetic.Tone, Amplitude: 0.3, Frequency: 440},
	}
	src, err := buildSource(s)
	require.NoError(t, err)
	assert.Equal(t, "synthetic:tone", src.Name())
	assert.Equal(t, 16000, src.Format().SampleRate)

	s.Audio.Synthetic.Signal = "square"
	_, err = buildSource(s)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

type flakyStarter struct {
	failures int
	err      error
	calls    int
}

func (f *flakyStarter) Start(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func TestStartWithRetry(t *testing.T) {
	t.Parallel()

	deviceErr := errors.Newf("device busy").Category(errors.CategoryDevice).Build()

	f := &flakyStarter{failures: 2, err: deviceErr}
	require.NoError(t, startWithRetry(context.Background(), f, "mic", time.Millisecond))
	assert.Equal(t, 3, f.calls)

	f = &flakyStarter{failures: 1, err: errors.Newf("bad state").Category(errors.CategoryState).Build()}
	err := startWithRetry(context.Background(), f, "mic", time.Millisecond)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Equal(t, 1, f.calls)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f = &flakyStarter{failures: 1 << 20, err: deviceErr}
	err = startWithRetry(ctx, f, "mic", 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
