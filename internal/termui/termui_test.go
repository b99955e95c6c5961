package termui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"civitdl/internal/transfer"
)

func TestTitle(t *testing.T) {
	got := Title(transfer.Observation{
		Filename:   "model.safetensors",
		Downloaded: 512 << 20,
		Total:      1 << 30,
		Speed:      8 << 20,
		ETA:        64*time.Second + 300*time.Millisecond,
	})
	for _, want := range []string{"model.safetensors", "512 MiB/1.0 GiB", "8.0 MiB/s", "ETA 1m4s"} {
		if !strings.Contains(got, want) {
			t.Fatalf("title %q missing %q", got, want)
		}
	}
	if strings.Contains(Title(transfer.Observation{Total: 10}), "ETA") {
		t.Fatalf("no ETA expected without an estimate")
	}
}

func TestProgressLifecycle(t *testing.T) {
	pterm.DisableOutput()
	defer pterm.EnableOutput()

	var buf bytes.Buffer
	p := &Progress{Out: &buf}
	p.Observe(transfer.Observation{State: transfer.StateResolving})
	p.Observe(transfer.Observation{State: transfer.StateStreaming, Filename: "f", Downloaded: 10, Total: 100})
	if p.bar == nil || p.shown != 10 {
		t.Fatalf("expected bar at 10, got bar=%v shown=%d", p.bar != nil, p.shown)
	}
	p.Observe(transfer.Observation{State: transfer.StateStreaming, Filename: "f", Downloaded: 100, Total: 100})
	if p.shown != 100 {
		t.Fatalf("shown=%d want 100", p.shown)
	}
	p.Observe(transfer.Observation{State: transfer.StateVerifying, Filename: "f"})
	if p.bar != nil {
		t.Fatalf("bar should stop before verifying")
	}
	p.Observe(transfer.Observation{State: transfer.StateDone})
	if p.bar != nil || p.spinner != nil {
		t.Fatalf("expected clean state after done")
	}

	p.Observe(transfer.Observation{State: transfer.StateStreaming, Filename: "g", Downloaded: 5, Total: -1})
	if p.bar != nil {
		t.Fatalf("unknown total should not start a bar")
	}
	p.Stop()
	if p.spinner != nil {
		t.Fatalf("Stop should clear the spinner")
	}
}

func TestNotifyWritesWarning(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	(&Prompter{Out: &buf}).Notify("enter numbers between 1 and 3")
	if !strings.Contains(buf.String(), "enter numbers between 1 and 3") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
