package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/easeaico/scene-studio/internal/inference"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models offered by the active backend",
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			list, err := a.backend.FetchModels(cmd.Context())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(list)
		}),
	}
}

func newBackendCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "backend [remote|local]",
		Short:     "Show or switch the active inference backend",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"remote", "local"},
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			name, status, err := switchBackend(cmd.Context(), a.backend, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend: %s\nlocal status: %s\n", name, status)
			return nil
		}),
	}
}

type backendSwitcher interface {
	UpdateSetting(ctx context.Context, useRemote bool) error
	InitializeLocal(ctx context.Context) inference.Status
	UsingRemote(ctx context.Context) bool
	LocalStatus() inference.Status
}

// switchBackend applies target ("" keeps the current backend) and reports the
// active backend. Switching to local waits for the load, since the process
// exits right after.
func switchBackend(ctx context.Context, b backendSwitcher, target string) (string, inference.Status, error) {
	if target != "" {
		useRemote := target == "remote"
		if err := b.UpdateSetting(ctx, useRemote); err != nil {
			return "", "", err
		}
		if !useRemote {
			b.InitializeLocal(ctx)
		}
	}
	name := "local"
	if b.UsingRemote(ctx) {
		name = "remote"
	}
	return name, b.LocalStatus(), nil
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-prompts",
		Short: "Insert default prompts and state rows that are missing",
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			n, err := a.store.EnsureDefaults(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d default rows\n", n)
			return nil
		}),
	}
}
