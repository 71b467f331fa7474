// Package cpuspec picks inference thread counts from the host CPU.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Spec describes the host processor.
type Spec struct {
	Brand            string
	LogicalCores     int
	PerformanceCores int // zero when the hybrid layout is unknown
}

// Detect inspects the running CPU.
func Detect() Spec {
	return Spec{
		Brand:            cpuid.CPU.BrandName,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PerformanceCores: performanceCores(cpuid.CPU.BrandName),
	}
}

// InferenceThreads returns the thread count for model inference. A positive
// configured value is capped at the available CPUs; zero selects the
// performance cores on hybrid parts, or all logical cores.
func (s Spec) InferenceThreads(configured int) int {
	available := runtime.NumCPU()
	if configured > 0 {
		return min(configured, available)
	}
	if s.PerformanceCores > 0 {
		return min(s.PerformanceCores, available)
	}
	if s.LogicalCores > 0 {
		return min(s.LogicalCores, available)
	}
	return available
}

var (
	intelCoreRegex  = regexp.MustCompile(`intel.*core.*i[3579]-(1[234]\d)00`)
	intelUltraRegex = regexp.MustCompile(`intel.*core.*ultra\s+[579]\s+(?:processor\s+)?(\d{3})`)
	appleRegex      = regexp.MustCompile(`apple\s+(m[1-4](?:\s+(?:pro|max|ultra))?)`)
)

// Performance core counts of hybrid desktop parts, keyed by model prefix.
var intelCorePCores = map[string]int{
	"129": 8, "127": 8, "126": 6, "124": 6, "121": 4,
	"139": 8, "137": 8, "136": 6, "135": 6, "134": 6, "131": 4,
	"149": 8, "147": 8, "146": 6, "144": 6, "141": 4,
}

var intelUltraPCores = map[string]int{
	"285": 8, "265": 8, "255": 8, "235": 6, "225": 4,
}

// Pro parts ship in two core configurations; the larger one is listed.
var applePCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
	"m4": 6, "m4 pro": 8, "m4 max": 12,
}

func performanceCores(brand string) int {
	brand = strings.ToLower(brand)
	if m := intelCoreRegex.FindStringSubmatch(brand); m != nil {
		return intelCorePCores[m[1]]
	}
	if m := intelUltraRegex.FindStringSubmatch(brand); m != nil {
		return intelUltraPCores[m[1]]
	}
	if m := appleRegex.FindStringSubmatch(brand); m != nil {
		return applePCores[strings.Join(strings.Fields(m[1]), " ")]
	}
	return 0
}
