package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"civitdl/internal/civitai"
	"civitdl/internal/common/fsutil"
	"civitdl/internal/config"
	"civitdl/internal/manager"
	"civitdl/internal/metrics"
	"civitdl/internal/termui"
	"civitdl/internal/transfer"
)

// app carries the collaborators built from configuration for one
// invocation.
type app struct {
	cfgPath   string
	file      config.Config // as stored on disk
	effective config.Config // file + env + defaults
	token     string

	log      zerolog.Logger
	client   *civitai.Client
	engine   *transfer.Engine
	metrics  *metrics.Recorder
	progress *termui.Progress
	prompter *termui.Prompter

	metricsFile string
}

// newApp loads configuration and wires the client, engine and recorder.
func newApp(g *Config) (*app, error) {
	path := g.ConfigPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	file, _, err := config.LoadOrEmpty(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	eff := file.ApplyEnv(os.Getenv).WithDefaults()
	if err := eff.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	level := eff.LogLevel
	if g.LogLevel != "" {
		level = g.LogLevel
	}
	a := &app{
		cfgPath:     path,
		file:        file,
		effective:   eff,
		log:         newLogger(g.Stderr, level, stderrIsTerminal()),
		metrics:     metrics.New(),
		prompter:    &termui.Prompter{Out: g.Stdout},
		metricsFile: eff.MetricsFile,
	}
	if g.MetricsFile != "" {
		a.metricsFile = g.MetricsFile
	}

	token, source := config.ResolveToken(g.Token, eff, os.Getenv)
	a.token = token
	if source != "" {
		a.log.Debug().Str("source", source).Msg("using API token")
	} else {
		a.log.Debug().Msg("no API token configured; gated models will fail")
	}

	clientLog := a.log.With().Str("component", "civitai").Logger()
	a.client = civitai.New(civitai.Config{
		BaseURL:   eff.BaseURL,
		Token:     token,
		UserAgent: eff.UserAgent,
		Logger:    &clientLog,
	})

	engineLog := a.log.With().Str("component", "transfer").Logger()
	ecfg := transfer.Config{
		Token:     token,
		UserAgent: eff.UserAgent,
		Metrics:   a.metrics,
		Logger:    &engineLog,
	}
	if stderrIsTerminal() {
		a.progress = termui.NewProgress()
		ecfg.Progress = a.progress
	}
	a.engine = transfer.New(ecfg)
	return a, nil
}

// manager builds an orchestrator; prompts are enabled only when interactive.
func (a *app) manager(interactive bool) *manager.Manager {
	cfg := manager.ManagerConfig{
		Client:      a.client,
		Transfer:    a.engine,
		InstallPath: a.effective.InstallPath,
		Metrics:     a.metrics,
		Logger:      &a.log,
	}
	if interactive {
		cfg.Prompter = a.prompter
	}
	return manager.NewWithConfig(cfg)
}

func (a *app) writeMetrics() error {
	if a.progress != nil {
		a.progress.Stop()
	}
	if a.metricsFile == "" {
		return nil
	}
	path, err := fsutil.ExpandHome(a.metricsFile)
	if err != nil {
		return err
	}
	return a.metrics.WriteTextfile(path)
}
