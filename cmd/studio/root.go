package main

import (
	"github.com/spf13/cobra"

	"github.com/easeaico/scene-studio/internal/config"
)

type rootOptions struct {
	logLevel string
	cfg      config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "studio",
		Short: "Scene roleplay studio: prompt assembly and inference",
		Long: `studio assembles roleplay prompts from stored agents, scenes and dialogs
and runs them against a remote OpenAI-compatible server or local GGUF models.

Configuration comes from the environment (DATABASE_URL is required).`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.cfg = config.Load()
			level := opts.cfg.LogLevel
			if cmd.Flags().Changed("log") {
				level = opts.logLevel
			}
			setupLogger(level)
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log", "info", "Log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(opts),
		newModelsCmd(opts),
		newBackendCmd(opts),
		newPlayCmd(opts),
		newReflectCmd(opts, "think"),
		newReflectCmd(opts, "plan"),
		newEvolveCmd(opts),
		newStyleCmd(opts),
		newIndexCmd(opts),
		newSeedCmd(opts),
	)
	return root
}

// withApp wires the services for one command run.
func withApp(opts *rootOptions, run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), opts.cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, args, a)
	}
}
