package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the part of testing.T the asserter needs.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
}

type TextAssertOptions struct {
	TrimTrailingWhitespace bool `default:"true"`
	IgnoreEmptyLines       bool `default:"false"`
	EnableColors           bool `default:"false"`
}

// TextOption is a functional option for configuring TextAsserter
type TextOption func(*TextAssertOptions)

// WithIgnoreEmptyLines drops blank lines before comparing.
func WithIgnoreEmptyLines() TextOption {
	return func(o *TextAssertOptions) { o.IgnoreEmptyLines = true }
}

// WithColors highlights the diff for terminal viewing.
func WithColors() TextOption {
	return func(o *TextAssertOptions) { o.EnableColors = true }
}

// TextAsserter compares command output line by line and reports a unified diff.
type TextAsserter struct {
	t       TestingT
	options TextAssertOptions
}

func NewTextAsserter(t TestingT, opts ...TextOption) *TextAsserter {
	ta := &TextAsserter{t: t}
	defaults.SetDefaults(&ta.options)
	for _, opt := range opts {
		opt(&ta.options)
	}
	return ta
}

// Assert fails the test when actual differs from expected.
func (ta *TextAsserter) Assert(actual, expected string) bool {
	ta.t.Helper()
	if diff := ta.Diff(actual, expected); diff != "" {
		ta.t.Errorf("Text assertion failed - unified diff:\n%s", diff)
		return false
	}
	return true
}

// Diff returns the unified diff between the normalized texts, or "" if they match.
func (ta *TextAsserter) Diff(actual, expected string) string {
	a, e := ta.normalize(actual), ta.normalize(expected)
	if a == e {
		return ""
	}
	edits := myers.ComputeEdits("", e, a)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", e, edits))
	if !ta.options.EnableColors {
		return unified
	}
	return colorize(unified)
}

func (ta *TextAsserter) normalize(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		if ta.options.TrimTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		if ta.options.IgnoreEmptyLines && line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n") + "\n"
}

func colorize(diff string) string {
	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(strings.ReplaceAll(line, " ", "·"))
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(strings.ReplaceAll(line, " ", "·"))
		}
	}
	return strings.Join(lines, "\n")
}
