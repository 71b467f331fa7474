//go:build ruleguard

// Package gorules holds ruleguard checks for hearken conventions. Run with
//
//	golangci-lint run --enable gocritic
//
// and gocritic's ruleguard checker pointed at this directory.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// StdErrorsImport reports imports of the standard errors package outside
// internal/errors. Categorized errors carry the component and category the
// health monitor and Sentry group by.
func StdErrorsImport(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().Imports("errors") && !m.File().PkgPath.Matches(`/internal/errors$`)).
		Report("use errors.Newf($msg).Component(...).Category(...).Build() from internal/errors")
}

// ErrorfInInternal flags fmt.Errorf wrapping in the listener pipeline.
// Wrapped errors there lose their category.
func ErrorfInInternal(m dsl.Matcher) {
	m.Match(`fmt.Errorf($fmt, $*args)`).
		Where(m.File().PkgPath.Matches(`/internal/(listener|trigger|learning|health|events|datastore)(/|$)`)).
		Report("build a categorized error with errors.New(err).Category(...) instead of fmt.Errorf")
}

// FormattedLogMessage flags log messages built with fmt.Sprintf. Values go
// into structured fields.
func FormattedLogMessage(m dsl.Matcher) {
	m.Match(
		`$log.Info(fmt.Sprintf($*_), $*_)`,
		`$log.Warn(fmt.Sprintf($*_), $*_)`,
		`$log.Error(fmt.Sprintf($*_), $*_)`,
		`$log.Debug(fmt.Sprintf($*_), $*_)`,
	).
		Where(m["log"].Type.Implements(`github.com/tphakala/hearken/internal/logger.Logger`)).
		Report("use a constant message and logger fields")
}

// SleepInTest flags time.Sleep in tests; poll with testutil.WaitFor instead.
func SleepInTest(m dsl.Matcher) {
	m.Match(`time.Sleep($d)`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("poll with testutil.WaitFor instead of time.Sleep($d)")
}

// WaitGroupGo suggests the Go 1.25 WaitGroup.Go helper.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("sync.WaitGroup") || m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... })").
		Suggest("$wg.Go(func() { $body })")
}

// TestingContext suggests t.Context() over context.Background() in tests.
func TestingContext(m dsl.Matcher) {
	m.Match(`context.Background()`).
		Where(m.File().Name.Matches(`_test\.go$`) && m.File().Imports("testing")).
		Report("consider t.Context(), cancelled when the test ends")
}
