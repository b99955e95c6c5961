package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"civitdl/internal/batch"
	"civitdl/internal/civitai"
	"civitdl/internal/config"
	"civitdl/internal/manager"
	"civitdl/internal/registry"
	"civitdl/internal/selection"
	"civitdl/internal/transfer"
)

// runGet downloads one reference. Without a reference an interactive
// session asks for one and offers to continue afterwards.
func (a *app) runGet(ctx context.Context, w io.Writer, ref string, f getFlags) error {
	interactive := !f.yes && (f.interactive || stdinIsTerminal())
	opts := manager.Options{
		Ref:         ref,
		Output:      f.output,
		Force:       f.force,
		Version:     f.version,
		ModelType:   f.modelType,
		Interactive: interactive,
	}
	mgr := a.manager(interactive)

	if ref != "" {
		out := mgr.Run(ctx, opts)
		report(w, out)
		return outcomeErr(out)
	}
	if !interactive {
		return usageError{errors.New("a model URL, id or search text is required when not running interactively")}
	}

	failed := false
	for {
		if ctx.Err() != nil {
			return errCanceled
		}
		ref, err := a.prompter.Ask("Model URL, ID or search text")
		if err != nil {
			return err
		}
		if ref != "" {
			opts.Ref = ref
			out := mgr.Run(ctx, opts)
			report(w, out)
			if out.Canceled {
				return errCanceled
			}
			failed = failed || !out.OK()
		}
		more, err := a.prompter.Confirm("Download another model?")
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	if failed {
		return errFailed
	}
	return nil
}

// runBatch loads a list and processes it without prompting.
func (a *app) runBatch(ctx context.Context, w io.Writer, path string, f getFlags) error {
	items, err := batch.Load(path)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintf(w, "No references found in %s\n", path)
		return nil
	}
	a.log.Info().Str("file", path).Int("items", len(items)).Msg("starting batch")
	s := a.manager(false).RunBatch(ctx, items, manager.Options{
		Output:    f.output,
		Force:     f.force,
		ModelType: f.modelType,
	})
	for _, out := range s.Failed {
		report(w, out)
	}
	pterm.DefaultSection.WithWriter(w).Println("Batch summary")
	fmt.Fprintf(w, "%d of %d succeeded, %d failed\n", s.Succeeded, s.Total, len(s.Failed))
	switch {
	case s.Canceled:
		return errCanceled
	case !s.OK():
		return errFailed
	}
	return nil
}

func (a *app) runSearch(ctx context.Context, w io.Writer, query string, limit int) error {
	results, err := a.client.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "No models matched %q\n", query)
		return nil
	}
	data := pterm.TableData{{"ID", "Name", "Type", "Versions"}}
	for _, m := range results {
		data = append(data, []string{strconv.FormatInt(m.ID, 10), m.Name, m.Type, strconv.Itoa(len(m.ModelVersions))})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

type configureFlags struct {
	apiKey         string
	installPath    string
	tokenStore     string
	skipValidation bool
}

// runConfigure stores the API key and install path. Missing values are
// asked for on a terminal; the key is checked against the API unless
// validation is skipped.
func (a *app) runConfigure(ctx context.Context, w io.Writer, f configureFlags) error {
	cfg := a.file
	if f.tokenStore != "" {
		cfg.TokenStore = f.tokenStore
		if err := cfg.Validate(); err != nil {
			return usageError{err}
		}
	}

	key, path := f.apiKey, f.installPath
	if stdinIsTerminal() {
		var err error
		if key == "" {
			if key, err = a.prompter.AskSecret("CivitAI API key (leave empty to keep the current one)"); err != nil {
				return err
			}
		}
		if path == "" {
			current := a.effective.InstallPath
			if path, err = a.prompter.Ask(fmt.Sprintf("ComfyUI install path [%s]", current)); err != nil {
				return err
			}
		}
	}

	if key != "" {
		if !f.skipValidation {
			if err := a.client.ValidateToken(ctx, key); err != nil {
				if civitai.IsUnauthorized(err) {
					return fmt.Errorf("API key was rejected by %s", a.client.BaseURL())
				}
				return fmt.Errorf("validate API key: %w", err)
			}
			fmt.Fprintln(w, "API key is valid.")
		}
		var err error
		if cfg, err = config.StoreToken(cfg, key); err != nil {
			return err
		}
	}
	if path != "" {
		if !config.LooksLikeComfyUI(path) {
			a.log.Warn().Str("path", path).Msg("directory does not look like a ComfyUI installation")
		}
		cfg.InstallPath = path
	}
	if err := config.Save(a.cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "Configuration saved to %s\n", a.cfgPath)
	return nil
}

func (a *app) runList(w io.Writer) error {
	root := a.effective.InstallPath
	files, err := registry.LoadDir(root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(w, "No model files found under %s\n", root)
		return nil
	}
	data := pterm.TableData{{"Type", "File", "Size", "Status"}}
	var total int64
	for _, f := range files {
		status := "complete"
		if f.Partial {
			status = "partial"
		}
		total += f.Size
		data = append(data, []string{string(f.Category), f.Name, humanize.IBytes(uint64(f.Size)), status})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s in %d files under %s\n", humanize.IBytes(uint64(total)), len(files), root)
	return nil
}

func (a *app) runReset(w io.Writer) error {
	removed, err := config.Reset(a.cfgPath)
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintln(w, "Configuration removed.")
	} else {
		fmt.Fprintln(w, "No configuration to remove.")
	}
	return nil
}

// report prints the outcome of one run.
func report(w io.Writer, out manager.Outcome) {
	if out.Err != nil {
		pterm.Error.WithWriter(w).Printfln("%s: %v", out.Ref, out.Err)
		var vnf *selection.VersionNotFoundError
		if errors.As(out.Err, &vnf) {
			fmt.Fprintf(w, "Available versions: %s\n", strings.Join(vnf.Available, ", "))
		}
		return
	}
	for _, f := range out.Files {
		switch {
		case f.Err != nil:
			pterm.Error.WithWriter(w).Printfln("%s", hint(f.Err))
		case f.Result.Skipped:
			pterm.Info.WithWriter(w).Printfln("Skipped existing %s", f.Result.Path)
		case f.Result.Verify.Checked && !f.Result.Verify.OK:
			pterm.Warning.WithWriter(w).Printfln("%v", f.Result.Verify.Mismatch(f.Result.Path))
		default:
			pterm.Success.WithWriter(w).Printfln("Saved %s (%s)", f.Result.Path, humanize.IBytes(uint64(f.Result.Size)))
		}
	}
}

// hint adds advice for errors a user can fix.
func hint(err error) string {
	switch {
	case transfer.IsUnauthorized(err):
		return err.Error() + "\nThis model may require a logged-in account; run 'civitdl configure' or pass --token."
	case errors.Is(err, transfer.ErrInsufficientSpace):
		return err.Error() + "\nFree some disk space and run the same command again to resume."
	default:
		return err.Error()
	}
}

func outcomeErr(out manager.Outcome) error {
	switch {
	case out.Canceled:
		return errCanceled
	case !out.OK():
		return errFailed
	}
	return nil
}
