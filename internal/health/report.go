// Package health runs the periodic self-diagnosis of the listener. Each
// cycle produces a Report, escalates issues that recur across cycles and,
// when auto-fix is enabled, runs the remediation bound to each issue.
package health

import (
	"time"

	"github.com/tphakala/hearken/internal/errors"
)

// Severity ranks an issue. Higher values are worse.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "critical"
	}
}

// escalate raises s by one level per consecutive cycle after the first.
func (s Severity) escalate(consecutive int) Severity {
	s += Severity(max(consecutive-1, 0))
	return min(s, SeverityCritical)
}

// Issue keys.
const (
	IssueStoreUnreachable = "store_unreachable"
	IssueCaptureStopped   = "capture_stopped"
	IssueCaptureStalled   = "capture_stalled"
	IssueErrorRate        = "error_rate"
	IssueLearningFailing  = "learning_failing"
	IssueFlushFailing     = "flush_failing"
	IssueEventsDropped    = "events_dropped"
	IssueRetention        = "retention_exceeded"
	IssueCPU              = "cpu_high"
	IssueMemory           = "memory_high"
	IssueDisk             = "disk_high"
)

// Issue is one problem found by a health cycle.
type Issue struct {
	Key         string
	Message     string
	Severity    Severity
	Consecutive int  // cycles in a row the issue has been present
	Unresolved  bool // its remediation failed this cycle
}

// Action is one remediation attempt.
type Action struct {
	Name     string
	Issue    string
	Success  bool
	Error    string
	Duration time.Duration
}

// Resources is a system resource sample in percent.
type Resources struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// Report is the outcome of one health cycle.
type Report struct {
	Time              time.Time
	Duration          time.Duration
	Errors            map[errors.ErrorCategory]uint64 // errors since the previous cycle
	BufferUtilization float64
	CaptureRunning    bool
	StoreReachable    bool
	FlushSuccessRate  float64
	EventsDropped     uint64
	Resources         Resources
	Issues            []Issue
	Actions           []Action
}

// Healthy reports whether the cycle found no issues.
func (r *Report) Healthy() bool {
	return len(r.Issues) == 0
}

// Issue returns the issue with key, if present.
func (r *Report) Issue(key string) (Issue, bool) {
	for _, is := range r.Issues {
		if is.Key == key {
			return is, true
		}
	}
	return Issue{}, false
}

// MaxSeverity returns the worst severity in the report and false when
// there are no issues.
func (r *Report) MaxSeverity() (Severity, bool) {
	if len(r.Issues) == 0 {
		return SeverityLow, false
	}
	worst := SeverityLow
	for _, is := range r.Issues {
		worst = max(worst, is.Severity)
	}
	return worst, true
}
