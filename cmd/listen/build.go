package listen

import (
	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/audiocore/sources/malgo"
	"github.com/tphakala/hearken/internal/audiocore/sources/synthetic"
	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/trigger"
	"github.com/tphakala/hearken/internal/trigger/whisper"
	"github.com/tphakala/hearken/internal/trigger/yamnet"
)

const (
	sourceSynthetic = "synthetic"
	yamnetTopK      = 5
)

// buildClassifier assembles the configured sound classifier and optional
// transcriber into one classifier. The returned function releases models.
func buildClassifier(settings *conf.Settings) (trigger.Classifier, func(), error) {
	t := &settings.Trigger
	var (
		classifiers trigger.Multi
		closers     []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	switch t.Classifier {
	case "", "rules":
		classifiers = append(classifiers, trigger.NewRuleClassifier(trigger.DefaultRules()...))
	case "yamnet":
		c, err := yamnet.New(yamnet.Config{
			ModelPath: t.YAMNet.ModelPath,
			LabelPath: t.YAMNet.LabelPath,
			Threads:   t.YAMNet.Threads,
			TopK:      yamnetTopK,
		})
		if err != nil {
			return nil, nil, err
		}
		classifiers = append(classifiers, c)
		closers = append(closers, c.Close)
	default:
		return nil, nil, errors.Newf("unknown classifier %q", t.Classifier).
			Component("listen").
			Category(errors.CategoryConfiguration).
			Build()
	}

	switch t.Transcriber {
	case "", "none":
	case "whisper":
		tr, err := whisper.New(t.Whisper.ModelPath, t.Whisper.Language)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		lexical := trigger.NewLexicalMatcher(t.Lexical.PhoneticThreshold, t.Lexical.FuzzyThreshold)
		classifiers = append(classifiers, trigger.NewTranscriptClassifier(tr, lexical))
		closers = append(closers, func() {
			if err := tr.Close(); err != nil {
				GetLogger().Warn("failed to release whisper model", logger.Error(err))
			}
		})
	default:
		closeAll()
		return nil, nil, errors.Newf("unknown transcriber %q", t.Transcriber).
			Component("listen").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if len(classifiers) == 1 {
		return classifiers[0], closeAll, nil
	}
	return classifiers, closeAll, nil
}

// buildSource returns the capture device, or the generator when the
// source is "synthetic".
func buildSource(settings *conf.Settings) (audiocore.AudioSource, error) {
	a := &settings.Audio
	if a.Source == sourceSynthetic {
		return synthetic.New(synthetic.Config{
			Signal:     a.Synthetic.Signal,
			Amplitude:  a.Synthetic.Amplitude,
			Frequency:  a.Synthetic.Frequency,
			SampleRate: a.SampleRate,
			Realtime:   true,
		})
	}
	return malgo.New(malgo.Config{
		Device:     a.Source,
		Backend:    a.Backend,
		SampleRate: a.SampleRate,
	}), nil
}
