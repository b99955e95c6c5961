package termui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"civitdl/internal/transfer"
)

// Progress draws a bar when the total size is known and a spinner otherwise.
// It implements transfer.ProgressSink.
type Progress struct {
	Out io.Writer

	mu      sync.Mutex
	bar     *pterm.ProgressbarPrinter
	spinner *pterm.SpinnerPrinter
	shown   int64
}

// NewProgress returns a Progress writing to stderr.
func NewProgress() *Progress { return &Progress{Out: os.Stderr} }

// Observe implements transfer.ProgressSink.
func (p *Progress) Observe(o transfer.Observation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch o.State {
	case transfer.StateResolving:
		p.reset()
		p.spin("Resolving download")
	case transfer.StateSizeProbing:
		p.spin("Checking size of " + o.Filename)
	case transfer.StateStreaming:
		if o.Total <= 0 {
			p.spin(fmt.Sprintf("%s  %s  %s/s", o.Filename, humanize.IBytes(uint64(o.Downloaded)), humanize.IBytes(uint64(o.Speed))))
			return
		}
		p.stopSpinner()
		if p.bar == nil {
			bar, err := pterm.DefaultProgressbar.
				WithWriter(p.out()).
				WithTotal(int(o.Total)).
				WithShowCount(false).
				WithRemoveWhenDone(false).
				WithTitle(o.Filename).
				Start()
			if err != nil {
				return
			}
			p.bar = bar
		}
		if d := o.Downloaded - p.shown; d > 0 {
			p.bar.Add(int(d))
			p.shown = o.Downloaded
		}
		p.bar.UpdateTitle(Title(o))
	case transfer.StateVerifying:
		p.stopBar()
		p.spin("Verifying " + o.Filename)
	case transfer.StateDone:
		p.reset()
	}
}

// Stop clears any active bar or spinner, e.g. after a failed transfer.
func (p *Progress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

// Title formats the bar title: name, sizes, speed and ETA.
func Title(o transfer.Observation) string {
	s := fmt.Sprintf("%s  %s/%s  %s/s", o.Filename, humanize.IBytes(uint64(o.Downloaded)), humanize.IBytes(uint64(o.Total)), humanize.IBytes(uint64(o.Speed)))
	if o.ETA > 0 {
		s += "  ETA " + o.ETA.Round(time.Second).String()
	}
	return s
}

func (p *Progress) spin(text string) {
	if p.spinner != nil {
		p.spinner.UpdateText(text)
		return
	}
	sp, err := pterm.DefaultSpinner.WithWriter(p.out()).WithRemoveWhenDone(true).Start(text)
	if err == nil {
		p.spinner = sp
	}
}

func (p *Progress) stopSpinner() {
	if p.spinner != nil {
		_ = p.spinner.Stop()
		p.spinner = nil
	}
}

func (p *Progress) stopBar() {
	if p.bar != nil {
		_, _ = p.bar.Stop()
		p.bar = nil
	}
	p.shown = 0
}

func (p *Progress) reset() {
	p.stopSpinner()
	p.stopBar()
}

func (p *Progress) out() io.Writer {
	if p.Out == nil {
		return os.Stderr
	}
	return p.Out
}
