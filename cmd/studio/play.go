package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easeaico/scene-studio/internal/orchestrator"
)

func newPlayCmd(opts *rootOptions) *cobra.Command {
	var (
		req    orchestrator.PlayRequest
		refine bool
	)
	cmd := &cobra.Command{
		Use:   "play [query]",
		Short: "Play one paced turn and advance the pacing state",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			req.Query = strings.Join(args, " ")

			state, err := a.pacing.Load(ctx)
			if err != nil {
				return err
			}
			res, err := a.orchestrator.PlayTurn(ctx, orchestrator.TurnRequest{
				PlayRequest: req,
				State:       state,
				Refine:      refine,
			})
			if err != nil {
				return err
			}
			if err := a.pacing.Save(ctx, res.Next); err != nil {
				return err
			}

			slog.Debug("turn finished", "directive", res.Directive, "refined", res.Final != res.Draft)
			fmt.Fprintln(cmd.OutOrStdout(), res.Final)
			return nil
		}),
	}
	cmd.Flags().IntVar(&req.SceneID, "scene", 0, "Scene id")
	cmd.Flags().StringVar(&req.Responder, "responder", "", "Persona that answers")
	cmd.Flags().StringVar(&req.Actor, "actor", "", "Persona asking")
	cmd.Flags().StringVar(&req.ModelID, "model", "", "Model id (default: backend preference)")
	cmd.Flags().BoolVar(&refine, "refine", false, "Run the responder's checker prompt over the draft")
	_ = cmd.MarkFlagRequired("scene")
	_ = cmd.MarkFlagRequired("responder")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

// newReflectCmd builds think or plan; both update the agent and print the result.
func newReflectCmd(opts *rootOptions, name string) *cobra.Command {
	var req orchestrator.AgentRequest
	short := "Rewrite an agent's state from recent events"
	if name == "plan" {
		short = "Rewrite an agent's goals from recent events"
	}
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			run := a.orchestrator.Think
			if name == "plan" {
				run = a.orchestrator.Plan
			}
			out, err := run(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}),
	}
	addAgentFlags(cmd, &req)
	return cmd
}

func newEvolveCmd(opts *rootOptions) *cobra.Command {
	var req orchestrator.AgentRequest
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Stream an agent's evolved persona prompt",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			_, err := a.orchestrator.EvolveStream(cmd.Context(), req, writerSink{out: cmd.OutOrStdout()})
			return err
		}),
	}
	addAgentFlags(cmd, &req)
	return cmd
}

func addAgentFlags(cmd *cobra.Command, req *orchestrator.AgentRequest) {
	cmd.Flags().IntVar(&req.SceneID, "scene", 0, "Scene id")
	cmd.Flags().StringVar(&req.Agent, "agent", "", "Agent name")
	cmd.Flags().StringVar(&req.ModelID, "model", "", "Model id (default: backend preference)")
	_ = cmd.MarkFlagRequired("scene")
	_ = cmd.MarkFlagRequired("agent")
}

// writerSink prints streamed chunks as they arrive. Stream failures are
// returned by the orchestrator as well, so Error only logs.
type writerSink struct {
	out io.Writer
}

func (s writerSink) Chunk(text string) error {
	_, err := io.WriteString(s.out, text)
	return err
}

func (s writerSink) Error(f orchestrator.Failure) error {
	slog.Debug("stream interrupted", "kind", f.Kind, "message", f.Message)
	return nil
}

func (s writerSink) Done() error {
	_, err := io.WriteString(s.out, "\n")
	return err
}

func newStyleCmd(opts *rootOptions) *cobra.Command {
	var req orchestrator.StyleRequest
	cmd := &cobra.Command{
		Use:   "style",
		Short: "Synthesize an agent's style guide from commented dialogs",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			guide, err := a.orchestrator.Style(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), guide)
			return nil
		}),
	}
	cmd.Flags().StringVar(&req.Agent, "agent", "", "Agent name")
	cmd.Flags().StringVar(&req.ModelID, "model", "", "Model id (default: backend preference)")
	cmd.Flags().BoolVar(&req.Save, "save", false, "Store the guide as the agent's style guide")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}
