package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"civitdl/internal/metrics"
	"civitdl/internal/registry"
	"civitdl/internal/selection"
	"civitdl/internal/transfer"
	"civitdl/pkg/types"
)

// MetadataClient is the part of the API client the orchestrator uses.
type MetadataClient interface {
	FetchModel(ctx context.Context, id string) (types.Model, error)
	FetchVersion(ctx context.Context, id string) (types.Version, error)
	Search(ctx context.Context, query string, limit int) ([]types.Model, error)
	DownloadURL(versionID, fileID int64) string
}

// Transferrer fetches one file.
type Transferrer interface {
	Transfer(ctx context.Context, req transfer.Request) (transfer.Result, error)
}

// Manager drives runs. It holds no per-run state and may be reused for a
// whole batch.
type Manager struct {
	client      MetadataClient
	transfer    Transferrer
	prompter    selection.Prompter
	installPath string
	searchLimit int
	metrics     *metrics.Recorder
	log         zerolog.Logger
}

// New constructs a Manager with package defaults.
func New(client MetadataClient, tr Transferrer, installPath string) *Manager {
	// Delegate to NewWithConfig to centralize defaults
	return NewWithConfig(ManagerConfig{
		Client:      client,
		Transfer:    tr,
		InstallPath: installPath,
	})
}

// Options describe one requested reference.
type Options struct {
	Ref string
	// Output replaces the routed destination directory.
	Output string
	// Force overwrites existing files without asking.
	Force bool
	// Version selects by name or "latest"; empty means newest or ask.
	Version string
	// ModelType forces the routing category.
	ModelType   string
	Interactive bool
}

// FileOutcome records what happened to one selected file. File is empty
// when a version failed before any file was chosen.
type FileOutcome struct {
	VersionID int64
	Version   string
	File      string
	Category  registry.Category
	Result    transfer.Result
	Err       error
}

// Outcome is the result of one Run.
type Outcome struct {
	RunID string
	Ref   string
	Model string
	Files []FileOutcome
	// Err is set when the run failed before any file was attempted.
	Err      error
	Canceled bool
}

// OK reports whether at least one file was handled and none failed.
func (o Outcome) OK() bool {
	if o.Err != nil || o.Canceled || len(o.Files) == 0 {
		return false
	}
	for _, f := range o.Files {
		if f.Err != nil {
			return false
		}
	}
	return true
}

// RunOne processes a single reference and reports success.
func (m *Manager) RunOne(ctx context.Context, opts Options) bool {
	return m.Run(ctx, opts).OK()
}

// Run processes a single reference: resolve it, pick versions and files,
// then transfer each file. A failing file does not stop its siblings.
func (m *Manager) Run(ctx context.Context, opts Options) (out Outcome) {
	out.RunID = uuid.NewString()
	out.Ref = opts.Ref
	log := m.log.With().Str("run_id", out.RunID).Logger()
	defer func() { m.metrics.ItemDone(out.OK()) }()

	interactive := opts.Interactive && m.prompter != nil
	if opts.ModelType != "" {
		if _, ok := registry.ParseCategory(opts.ModelType); !ok {
			out.Err = fmt.Errorf("unknown model type %q", opts.ModelType)
			return out
		}
	}

	p, err := m.plan(ctx, opts, interactive, log)
	if err != nil {
		m.fail(ctx, &out, err, log)
		return out
	}
	out.Model = p.model.Name
	if p.direct != nil {
		out.Files = append(out.Files, m.fetch(ctx, *p.direct, opts, interactive, log))
		out.Canceled = isCanceled(ctx, out.Files[0].Err)
		return out
	}

	for _, v := range p.versions {
		if ctx.Err() != nil {
			out.Canceled = true
			return out
		}
		vlog := log.With().Int64("model_id", p.model.ID).Int64("version_id", v.ID).Logger()
		files, err := selection.ChooseFiles(v.Files, interactive, m.prompter)
		if errors.Is(err, selection.ErrCanceled) {
			out.Canceled = true
			return out
		}
		if err != nil {
			vlog.Error().Err(err).Str("version", v.Name).Msg("no file to download for version")
			out.Files = append(out.Files, FileOutcome{VersionID: v.ID, Version: v.Name, Err: err})
			continue
		}
		for _, f := range files {
			fo := m.fetch(ctx, m.jobFor(p.model, v, f), opts, interactive, vlog)
			out.Files = append(out.Files, fo)
			if isCanceled(ctx, fo.Err) {
				out.Canceled = true
				return out
			}
		}
	}
	return out
}

// fetch runs one transfer and logs its result.
func (m *Manager) fetch(ctx context.Context, j job, opts Options, interactive bool, log zerolog.Logger) FileOutcome {
	fo := FileOutcome{VersionID: j.version.ID, Version: j.version.Name, File: j.target.Filename}
	req := transfer.Request{
		Target:    j.target,
		Dir:       m.destination(opts.Output, m.declaredType(j, opts), &fo.Category),
		Overwrite: opts.Force,
	}
	if interactive {
		if c, ok := m.prompter.(transfer.Confirmer); ok {
			req.Confirm = c
		}
	}
	res, err := m.transfer.Transfer(ctx, req)
	fo.Result = res
	if res.Path != "" {
		fo.File = filepath.Base(res.Path)
	}
	flog := log.With().Str("file", fo.File).Str("category", string(fo.Category)).Logger()
	switch {
	case err != nil:
		fo.Err = fileFailedError{file: fo.File, err: err}
		if isCanceled(ctx, err) {
			flog.Warn().Msg("transfer canceled, partial file kept")
		} else {
			flog.Error().Err(err).Msg("transfer failed")
		}
	case res.Skipped:
		flog.Info().Str("dest", res.Path).Msg("skipped existing file")
	default:
		ev := flog.Info().Str("dest", res.Path).Int64("bytes", res.Size)
		if res.Verify.Checked {
			ev = ev.Bool("hash_ok", res.Verify.OK)
		}
		ev.Msg("downloaded")
	}
	return fo
}

func (m *Manager) fail(ctx context.Context, out *Outcome, err error, log zerolog.Logger) {
	if isCanceled(ctx, err) || errors.Is(err, selection.ErrCanceled) {
		out.Canceled = true
		log.Info().Msg("canceled")
		return
	}
	out.Err = err
	log.Error().Err(err).Str("ref", out.Ref).Msg("cannot process reference")
}

func isCanceled(ctx context.Context, err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil)
}
