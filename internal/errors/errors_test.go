package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderCarriesMetadata(t *testing.T) {
	t.Parallel()

	ee := Newf("ping failed: %s", "refused").
		Component("datastore").
		Category(CategoryPersistence).
		Priority(PriorityHigh).
		Context("operation", "ping").
		Build()

	assert.Equal(t, "datastore", ee.GetComponent())
	assert.Equal(t, CategoryPersistence, ee.Category)
	assert.Equal(t, PriorityHigh, ee.GetPriority())
	assert.Equal(t, "ping", ee.GetContext()["operation"])
	assert.True(t, IsPersistenceError(ee))
	assert.False(t, IsDeviceError(ee))
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.GetPriority())
}

func TestCategoryPropagatesThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := New(NewStd("device gone")).Category(CategoryDevice).Build()
	outer := New(fmt.Errorf("start capture: %w", inner)).Build()

	assert.Equal(t, CategoryDevice, outer.Category)
	assert.True(t, IsDeviceError(outer))
	assert.Equal(t, CategoryDevice, CategoryOf(outer))
}

func TestContextErrorsAreCategorized(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CategoryTimeout, New(context.DeadlineExceeded).Build().Category)
	assert.Equal(t, CategoryCancellation, New(context.Canceled).Build().Category)
}

func TestEnhancedErrorIsMatchesCategory(t *testing.T) {
	t.Parallel()

	a := New(NewStd("a")).Category(CategoryRemediation).Build()
	b := New(NewStd("b")).Category(CategoryRemediation).Build()
	c := New(NewStd("c")).Category(CategoryExtraction).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestLookupComponentPrefersLongestPattern(t *testing.T) {
	t.Parallel()

	got := lookupComponent("github.com/tphakala/hearken/internal/trigger/yamnet.(*Classifier).Classify")
	assert.Equal(t, "trigger.yamnet", got)
}

type stubReporter struct {
	reported []*EnhancedError
}

func (s *stubReporter) ReportError(ee *EnhancedError) { s.reported = append(s.reported, ee); ee.MarkReported() }
func (s *stubReporter) IsEnabled() bool               { return true }

func TestReporterReceivesBuiltErrors(t *testing.T) {
	reporter := &stubReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("boom")).Category(CategoryLearningCycle).Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
	assert.True(t, ee.IsReported())
}

func TestScrubMessageForPrivacy(t *testing.T) {
	t.Parallel()

	scrubbed := scrubMessageForPrivacy("Error at https://api.example.com?api_key=secret123&token=abc")
	assert.Equal(t, "Error at https://api.example.com?[REDACTED]", scrubbed)

	scrubbed = scrubMessageForPrivacy("dial user:hunter2@tcp(db:3306)/hearken failed")
	assert.NotContains(t, scrubbed, "hunter2")

	scrubbed = scrubMessageForPrivacy("Auth failed with token=abc123 and auth=xyz789")
	assert.NotContains(t, scrubbed, "abc123")
	assert.NotContains(t, scrubbed, "xyz789")
}
