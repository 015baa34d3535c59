package cli

import (
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Progress is a terminal spinner for operations that keep the user waiting,
// such as connecting or running a tool. In quiet mode every method is a
// no-op so piped output stays clean.
type Progress struct {
	s     *spinner.Spinner
	quiet bool
}

// NewProgress creates a progress indicator. Pass quiet=true to suppress it.
func NewProgress(quiet bool) *Progress {
	return &Progress{quiet: quiet}
}

// Start begins the spinner with the given message.
func (p *Progress) Start(message string) {
	if p.quiet {
		return
	}
	p.s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	p.s.Suffix = " " + message
	p.s.Start()
}

// Stop clears the spinner. Success needs no message; the command's own
// output follows.
func (p *Progress) Stop() {
	if p.s == nil {
		return
	}
	p.s.Stop()
	p.s = nil
}

// Fail clears the spinner and leaves a red failure message behind.
func (p *Progress) Fail(message string) {
	if p.s == nil {
		return
	}
	p.s.FinalMSG = text.FgRed.Sprint(message) + "\n"
	p.s.Stop()
	p.s = nil
}
