package cpuspec

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerformanceCores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		brand string
		want  int
	}{
		{"12th Gen Intel(R) Core(TM) i9-12900K", 8},
		{"13th Gen Intel(R) Core(TM) i5-13400F", 6},
		{"Intel(R) Core(TM) i3-14100", 4},
		{"Intel(R) Core(TM) Ultra 5 225", 4},
		{"Apple M2 Max", 12},
		{"Apple M4", 6},
		{"AMD Ryzen 7 5800X 8-Core Processor", 0},
		{"Intel(R) Core(TM) i7-8700K CPU @ 3.70GHz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.brand, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, performanceCores(tt.brand))
		})
	}
}

func TestInferenceThreads(t *testing.T) {
	t.Parallel()

	available := runtime.NumCPU()
	assert.Equal(t, 1, Spec{}.InferenceThreads(1))
	assert.Equal(t, available, Spec{}.InferenceThreads(available+8))
	assert.Equal(t, min(2, available), Spec{PerformanceCores: 2, LogicalCores: 16}.InferenceThreads(0))
	assert.Equal(t, min(3, available), Spec{LogicalCores: 3}.InferenceThreads(0))
	assert.Equal(t, available, Spec{}.InferenceThreads(0))
	assert.Positive(t, Detect().InferenceThreads(0))
}
