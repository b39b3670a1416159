package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// InitUI applies the --no-color setting.
func InitUI(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// ProgressBar wraps a progressbar instance for page rendering progress.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a new progress bar with the given total and description.
func NewProgressBar(total int64, description string) *ProgressBar {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionEnableColorCodes(!color.NoColor),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar}
}

// Set moves the bar to current.
func (p *ProgressBar) Set(current int64) {
	_ = p.bar.Set64(current)
}

// Finish completes the progress bar.
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

// Spinner wraps a spinner instance for the blocking model call.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	s.spinner.Start()
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.spinner.Stop()
}

// Printer writes decorated status lines.
type Printer struct {
	out io.Writer
	err io.Writer
}

// NewPrinter creates a printer writing to stdout and stderr.
func NewPrinter() *Printer {
	return &Printer{out: os.Stdout, err: os.Stderr}
}

// Success displays a success message.
func (p *Printer) Success(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(p.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func (p *Printer) Error(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(p.err, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Section displays a section header.
func (p *Printer) Section(title string) {
	bold := color.New(color.Bold)
	bold.Fprintf(p.out, "\n%s\n", title)
	fmt.Fprintf(p.out, "%s\n\n", strings.Repeat("=", len([]rune(title))))
}

// Body prints free text as is.
func (p *Printer) Body(text string) {
	fmt.Fprintln(p.out, text)
}
