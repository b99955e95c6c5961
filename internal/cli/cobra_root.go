package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"civitdl/internal/registry"
)

// getFlags are the single-download options shared by the root and get
// commands.
type getFlags struct {
	output      string
	force       bool
	version     string
	modelType   string
	interactive bool
	yes         bool
}

// buildRootCmdWith constructs the command tree wired to the actions.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	var rootGet getFlags
	root := &cobra.Command{
		Use:   "civitdl [model url | id | search text]",
		Short: "Download models from CivitAI into a ComfyUI installation",
		Long: "civitdl resolves a CivitAI model page, version page, download link, numeric id\n" +
			"or search text, lets you pick versions and files, and downloads them with\n" +
			"resume support into the matching ComfyUI models folder.",
		Example:       "  civitdl 4201\n  civitdl https://civitai.com/models/4201/realistic-vision -v latest\n  civitdl batch models.yaml",
		Args:          usageArgs(cobra.MaximumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.app.runGet(cmd.Context(), cmd.OutOrStdout(), firstArg(args), rootGet)
		},
	}

	// Persistent flags -> Config
	pf := root.PersistentFlags()
	pf.StringVar(&cfg.ConfigPath, "config", "", "Config file (.toml, .yaml or .json; default ~/.civitdl/config.toml)")
	pf.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug|info|warn|error (defaults to config log_level or info)")
	pf.StringVar(&cfg.MetricsFile, "metrics-file", "", "Write transfer metrics in Prometheus text format to this file on exit")
	pf.StringVarP(&cfg.Token, "token", "t", "", "CivitAI API token (overrides env, keyring and config)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		cfg.app = a
		return nil
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error { return usageError{err} })
	bindGetFlags(root, &rootGet)

	// get
	var get getFlags
	getCmd := &cobra.Command{
		Use:     "get [model url | id | search text]",
		Aliases: []string{"download", "dl"},
		Short:   "Download one model (prompts for a reference when none is given)",
		Example: "  civitdl get 4201 --model-type lora\n  civitdl get \"realistic vision\" --yes -v V5.1",
		Args:    usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.app.runGet(cmd.Context(), cmd.OutOrStdout(), firstArg(args), get)
		},
	}
	bindGetFlags(getCmd, &get)

	// batch
	var batchBase getFlags
	batchCmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Download every reference listed in a file without prompting",
		Long: "The list may be .yaml/.yml, .json or .toml (a list of ids or records with\n" +
			"ref, version, model_type, output), or plain text with one reference per line\n" +
			"and an optional \"| version\" suffix.",
		Example: "  civitdl batch models.txt\n  civitdl batch models.yaml -o ./downloads",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.app.runBatch(cmd.Context(), cmd.OutOrStdout(), args[0], batchBase)
		},
	}
	batchCmd.Flags().StringVarP(&batchBase.output, "output", "o", "", "Directory for every file instead of the type folder")
	batchCmd.Flags().BoolVarP(&batchBase.force, "force", "f", false, "Overwrite existing files")
	batchCmd.Flags().StringVar(&batchBase.modelType, "model-type", "", "Default model type for items without one")

	// search
	var limit int
	searchCmd := &cobra.Command{
		Use:   "search <text>",
		Short: "List models matching a search",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.app.runSearch(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), limit)
		},
	}
	searchCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")

	// configure
	var conf configureFlags
	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Set the API key and ComfyUI install path",
		Example: "  civitdl configure\n" +
			"  civitdl configure --api-key $KEY --install-path ~/ComfyUI --token-store keyring",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.app.runConfigure(cmd.Context(), cmd.OutOrStdout(), conf)
		},
	}
	configureCmd.Flags().StringVar(&conf.apiKey, "api-key", "", "CivitAI API key to store")
	configureCmd.Flags().StringVar(&conf.installPath, "install-path", "", "ComfyUI installation directory")
	configureCmd.Flags().StringVar(&conf.tokenStore, "token-store", "", "Where to keep the key: file|keyring")
	configureCmd.Flags().BoolVar(&conf.skipValidation, "skip-validation", false, "Store the key without checking it against the API")

	// list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show model files already present under the install path",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.app.runList(cmd.OutOrStdout())
		},
	}

	// reset-config
	resetCmd := &cobra.Command{
		Use:   "reset-config",
		Short: "Delete the stored configuration and API key",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.app.runReset(cmd.OutOrStdout())
		},
	}

	root.AddCommand(getCmd, batchCmd, searchCmd, configureCmd, listCmd, resetCmd)
	return root
}

func bindGetFlags(cmd *cobra.Command, f *getFlags) {
	fs := cmd.Flags()
	fs.StringVarP(&f.output, "output", "o", "", "Download directory (skips type routing)")
	fs.BoolVarP(&f.force, "force", "f", false, "Overwrite existing files without asking")
	fs.StringVarP(&f.version, "version", "v", "", "Version name to download, or \"latest\"")
	fs.StringVar(&f.modelType, "model-type", "", "Force the model type: "+categoryList())
	fs.BoolVarP(&f.interactive, "interactive", "i", false, "Always prompt for versions and files")
	fs.BoolVar(&f.yes, "yes", false, "Never prompt; take the newest version and primary file")
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func categoryList() string {
	cs := registry.Categories()
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = strings.ToLower(string(c))
	}
	return strings.Join(names, "|")
}
