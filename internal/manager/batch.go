package manager

import (
	"context"

	"civitdl/internal/batch"
)

// Summary totals a batch run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    []Outcome
	// Canceled is set when the context ended the batch early.
	Canceled bool
}

// OK reports whether every item succeeded.
func (s Summary) OK() bool { return !s.Canceled && len(s.Failed) == 0 }

// RunBatch processes items one after another without prompting. Per-item
// fields override base; a failing item never stops the loop.
func (m *Manager) RunBatch(ctx context.Context, items []batch.Item, base Options) Summary {
	s := Summary{Total: len(items)}
	for i, it := range items {
		if ctx.Err() != nil {
			s.Canceled = true
			break
		}
		opts := base
		opts.Ref = it.Ref
		opts.Interactive = false
		if it.Version != "" {
			opts.Version = it.Version
		}
		if it.ModelType != "" {
			opts.ModelType = it.ModelType
		}
		if it.Output != "" {
			opts.Output = it.Output
		}
		m.log.Info().Int("item", i+1).Int("of", len(items)).Str("ref", it.Ref).Msg("batch item")

		out := m.Run(ctx, opts)
		switch {
		case out.OK():
			s.Succeeded++
		case out.Canceled:
			s.Canceled = true
			return s
		default:
			s.Failed = append(s.Failed, out)
		}
	}
	return s
}
