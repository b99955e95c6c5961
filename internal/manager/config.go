package manager

import (
	"github.com/rs/zerolog"

	"civitdl/internal/metrics"
	"civitdl/internal/selection"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultInstallPath = "~/ComfyUI"
	defaultSearchLimit = 10
)

// ManagerConfig encapsulates all collaborators and tunables for Manager
// construction.
type ManagerConfig struct {
	Client   MetadataClient
	Transfer Transferrer
	// Prompter enables interactive selection. Nil forces unattended mode.
	Prompter selection.Prompter
	// InstallPath is the root the category folders live under.
	InstallPath string
	SearchLimit int
	Metrics     *metrics.Recorder
	Logger      *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		client:      cfg.Client,
		transfer:    cfg.Transfer,
		prompter:    cfg.Prompter,
		installPath: cfg.InstallPath,
		searchLimit: cfg.SearchLimit,
		metrics:     cfg.Metrics,
		log:         zerolog.Nop(),
	}
	// Apply defaults if unset
	if m.installPath == "" {
		m.installPath = defaultInstallPath
	}
	if m.searchLimit <= 0 {
		m.searchLimit = defaultSearchLimit
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	return m
}
