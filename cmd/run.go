// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/observability"
	"github.com/xkilldash9x/docketpilot/internal/service"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

// runPlan is the full walk requested on the command line.
type runPlan struct {
	Category        string
	SubJurisdiction string
	SubRegion       string
	DocketNumber    string
	Alert           *workflow.AlertSettings
}

type step struct {
	trigger workflow.Trigger
	input   workflow.Input
}

// steps expands the plan into the ordered triggers it needs.
func (p runPlan) steps() []step {
	out := []step{{
		trigger: workflow.TriggerChooseCategory,
		input:   workflow.Input{Category: p.Category, SubJurisdiction: p.SubJurisdiction},
	}}
	if p.SubRegion != "" {
		out = append(out, step{trigger: workflow.TriggerChooseSubRegion, input: workflow.Input{SubRegion: p.SubRegion}})
	}
	out = append(out, step{trigger: workflow.TriggerSubmitIdentifier, input: workflow.Input{Identifier: p.DocketNumber}})
	if p.Alert != nil {
		out = append(out,
			step{trigger: workflow.TriggerRequestFollowUp},
			step{trigger: workflow.TriggerCompleteFollowUp, input: workflow.Input{Alert: p.Alert}},
		)
	}
	return out
}

type sessionStarter interface {
	Start(ctx context.Context) (*workflow.Session, workflow.PhaseResult, error)
}

func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		plan     runPlan
		alert    workflow.AlertSettings
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sign in and walk one docket through selection, search and alert setup",
		Example: `  docketpilot run --category "Dockets by State" --sub-jurisdiction California \
    --sub-region "Central District" --docket-number 2:24-cv-01234 \
    --alert-name "Acme v. Roadrunner" --email paralegal@example.com --frequency daily --times 5am`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			if alert.Name != "" {
				a := alert
				plan.Alert = &a
			}

			components, err := factory.Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			return runWorkflow(ctx, components.Sessions, plan, cmd.OutOrStdout(), logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&plan.Category, "category", "", "docket category to browse")
	f.StringVar(&plan.SubJurisdiction, "sub-jurisdiction", "", "state or option within the category")
	f.StringVar(&plan.SubRegion, "sub-region", "", "district within the state (optional)")
	f.StringVar(&plan.DocketNumber, "docket-number", "", "docket number to search for")
	f.StringVar(&alert.Name, "alert-name", "", "create an alert with this name after the search")
	f.StringVar(&alert.Description, "alert-description", "", "alert description")
	f.StringVar(&alert.Email, "email", "", "alert recipient")
	f.StringVar(&alert.Frequency, "frequency", "daily", "alert frequency")
	f.StringSliceVar(&alert.Times, "times", []string{"5am"}, "alert delivery times")
	f.BoolVar(&headless, "headless", true, "run the browser without a window")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("sub-jurisdiction")
	_ = cmd.MarkFlagRequired("docket-number")

	return cmd
}

// runWorkflow starts a session and fires the plan's triggers in order, stopping
// at the first failure.
func runWorkflow(ctx context.Context, sessions sessionStarter, plan runPlan, out io.Writer, logger *zap.Logger) error {
	session, res, err := sessions.Start(ctx)
	if err != nil {
		if res.DiagnosticsRef != "" {
			fmt.Fprintf(out, "Sign-in diagnostics: %s\n", res.DiagnosticsRef)
		}
		return fmt.Errorf("failed to start session: %w", err)
	}
	fmt.Fprintf(out, "Signed in. Session %s\n", session.ID)

	for _, s := range plan.steps() {
		res := session.StartPhase(ctx, s.trigger, s.input)
		printResult(out, s.trigger, res)
		if !res.OK() {
			logger.Warn("Run stopped at failed phase.",
				zap.String("session_id", session.ID),
				zap.String("trigger", string(s.trigger)),
				zap.String("kind", string(res.ErrorKind)))
			return fmt.Errorf("%s failed (%s): %s", s.trigger, res.ErrorKind, res.Message)
		}
	}

	sel := session.Selection()
	fmt.Fprintf(out, "\nDone. %s\n", describeSelection(sel))
	return nil
}

func printResult(out io.Writer, trig workflow.Trigger, res workflow.PhaseResult) {
	if res.OK() {
		fmt.Fprintf(out, "  [ok]   %-24s -> %s\n", trig, res.View)
		return
	}
	fmt.Fprintf(out, "  [fail] %-24s %s: %s\n", trig, res.ErrorKind, res.Message)
	if res.DiagnosticsRef != "" {
		fmt.Fprintf(out, "         diagnostics: %s\n", res.DiagnosticsRef)
	}
}

func describeSelection(sel workflow.Selection) string {
	parts := make([]string, 0, 4)
	for _, v := range []string{sel.Category, sel.SubJurisdiction, sel.SubRegion, sel.Identifier} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " → ")
}
