// Package yamnet classifies sound events with the YAMNet TFLite model.
//
// YAMNet takes 0.975 s of 16 kHz mono audio and scores 521 AudioSet
// classes. Windows of other lengths are cut into half-overlapping patches
// and each class keeps its best score across patches.
package yamnet

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/cpuspec"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/trigger"
)

const (
	// SampleRate is the model's input rate.
	SampleRate = 16000
	// PatchSamples is the model's fixed input length.
	PatchSamples = 15600
	// DefaultTopK is how many labels Classify returns.
	DefaultTopK = 5
)

// Config locates the model files.
type Config struct {
	ModelPath string
	LabelPath string // AudioSet class map CSV: index,mid,display_name
	Threads   int    // zero picks from the CPU topology
	TopK      int
}

// inferFunc scores one patch of PatchSamples samples.
type inferFunc func(patch []float32) ([]float32, error)

// Classifier implements trigger.Classifier. Inference is serialized; the
// interpreter is not safe for concurrent use.
type Classifier struct {
	labels []string
	topK   int

	mu          sync.Mutex
	infer       inferFunc
	interpreter *tflite.Interpreter
	model       *tflite.Model
	options     *tflite.InterpreterOptions
}

var _ trigger.Classifier = (*Classifier)(nil)

// New loads the model and labels and allocates the interpreter.
func New(cfg Config) (*Classifier, error) {
	start := time.Now()
	log := GetLogger()

	labels, err := LoadLabels(cfg.LabelPath)
	if err != nil {
		return nil, err
	}

	model := tflite.NewModelFromFile(cfg.ModelPath)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model").
			Component("trigger.yamnet").
			Category(errors.CategoryModelLoad).
			Context("model_path", cfg.ModelPath).
			Build()
	}

	threads := cpuspec.Detect().InferenceThreads(cfg.Threads)
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, modelInitError("cannot create interpreter", cfg.ModelPath)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, modelInitError("tensor allocation failed", cfg.ModelPath)
	}

	c := &Classifier{
		labels:      labels,
		topK:        topK(cfg.TopK),
		interpreter: interpreter,
		model:       model,
		options:     options,
	}
	c.infer = c.invoke

	out := interpreter.GetOutputTensor(0)
	if out == nil || out.Dim(out.NumDims()-1) != len(labels) {
		c.Close()
		return nil, errors.Newf("label count mismatch: model output does not match %d labels", len(labels)).
			Component("trigger.yamnet").
			Category(errors.CategoryValidation).
			Context("model_path", cfg.ModelPath).
			Context("label_path", cfg.LabelPath).
			Build()
	}

	log.Info("YAMNet model initialized",
		logger.String("model", cfg.ModelPath),
		logger.Int("labels", len(labels)),
		logger.Int("threads", threads),
		logger.Duration("load_time", time.Since(start)))
	return c, nil
}

// newWithInfer builds a classifier around a scoring function.
func newWithInfer(labels []string, k int, infer inferFunc) *Classifier {
	return &Classifier{labels: labels, topK: topK(k), infer: infer}
}

func topK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}

func modelInitError(msg, path string) error {
	return errors.Newf("%s", msg).
		Component("trigger.yamnet").
		Category(errors.CategoryModelInit).
		Context("model_path", path).
		Build()
}

// Close releases the interpreter and model.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.options != nil {
		c.options.Delete()
		c.options = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
}

// Classify scores the window and returns the top labels.
func (c *Classifier) Classify(ctx context.Context, w *trigger.Window) ([]trigger.Label, error) {
	samples := audiocore.Resample(w.Samples, w.SampleRate, SampleRate)

	c.mu.Lock()
	defer c.mu.Unlock()

	best := make([]float32, len(c.labels))
	for _, patch := range Patches(samples) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores, err := c.infer(patch)
		if err != nil {
			return nil, err
		}
		for i := range min(len(scores), len(best)) {
			best[i] = max(best[i], scores[i])
		}
	}
	return c.top(best), nil
}

func (c *Classifier) invoke(patch []float32) ([]float32, error) {
	if c.interpreter == nil {
		return nil, errors.Newf("classifier closed").
			Component("trigger.yamnet").
			Category(errors.CategoryState).
			Build()
	}
	input := c.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	copy(input.Float32s(), patch)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component("trigger.yamnet").
			Category(errors.CategoryMatching).
			Build()
	}

	output := c.interpreter.GetOutputTensor(0)
	scores := make([]float32, output.Dim(output.NumDims()-1))
	copy(scores, output.Float32s())
	return scores, nil
}

func (c *Classifier) top(scores []float32) []trigger.Label {
	labels := make([]trigger.Label, 0, len(scores))
	for i, s := range scores {
		if s <= 0 {
			continue
		}
		labels = append(labels, trigger.Label{Name: c.labels[i], Confidence: float64(s), Source: "yamnet"})
	}
	trigger.SortLabels(labels)
	if len(labels) > c.topK {
		labels = labels[:c.topK]
	}
	return labels
}

// Patches cuts samples into PatchSamples-long inputs with 50% overlap. The
// last patch is zero-padded; an empty input yields one silent patch.
func Patches(samples []float32) [][]float32 {
	const hop = PatchSamples / 2
	var patches [][]float32
	for start := 0; ; start += hop {
		patch := make([]float32, PatchSamples)
		copy(patch, samples[min(start, len(samples)):])
		patches = append(patches, patch)
		if start+PatchSamples >= len(samples) {
			return patches
		}
	}
}

// LoadLabels reads the AudioSet class map. The display name column is
// used; a header row is skipped.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("trigger.yamnet").
			Category(errors.CategoryFileIO).
			Context("label_path", path).
			Build()
	}
	defer f.Close()
	return ParseLabels(f)
}

// ParseLabels parses a class map CSV.
func ParseLabels(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.New(err).
			Component("trigger.yamnet").
			Category(errors.CategoryValidation).
			Context("operation", "parse_labels").
			Build()
	}

	labels := make([]string, 0, len(records))
	for i, rec := range records {
		if len(rec) < 3 {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "index") {
			continue
		}
		labels = append(labels, strings.TrimSpace(rec[2]))
	}
	if len(labels) == 0 {
		return nil, errors.Newf("label file has no classes").
			Component("trigger.yamnet").
			Category(errors.CategoryValidation).
			Build()
	}
	return slices.Clip(labels), nil
}
