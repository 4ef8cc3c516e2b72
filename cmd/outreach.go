package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/pipeline"
)

var outreachCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Draft and send outreach email to qualified leads",
}

// dryRunFlag returns the --dry-run override, or nil when the flag was not
// given, along with the effective value.
func dryRunFlag(cmd *cobra.Command) (*bool, bool) {
	if !cmd.Flags().Changed("dry-run") {
		return nil, cfg.Outreach.DryRun
	}
	v, _ := cmd.Flags().GetBool("dry-run")
	return &v, v
}

var outreachRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Email qualified leads, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		override, dryRun := dryRunFlag(cmd)
		env, err := initPipeline(ctx, envOptions{RequireLLM: true, RequireSMTP: !dryRun})
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		sum, runID, err := env.Coordinator.Outreach(ctx, pipeline.OutreachOptions{Limit: limit, DryRun: override})
		printSummary(os.Stdout, "outreach", runID, sum)
		return err
	},
}

var outreachSendCmd = &cobra.Command{
	Use:   "send <lead-id>",
	Short: "Email a single qualified lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		leadID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid lead id %q", args[0])
		}

		override, dryRun := dryRunFlag(cmd)
		env, err := initPipeline(ctx, envOptions{RequireLLM: true, RequireSMTP: !dryRun})
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Coordinator.SendOne(ctx, leadID, override)
		if err != nil {
			return eris.Wrap(err, "outreach send")
		}
		fmt.Fprintf(os.Stdout, "Lead %d: %s\n", leadID, res)
		return nil
	},
}

var outreachHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent outreach emails",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		emails, err := st.ListEmails(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "outreach history")
		}

		if len(emails) == 0 {
			fmt.Fprintln(os.Stderr, "No emails found.")
			return nil
		}

		formatEmailsList(os.Stdout, emails)
		return nil
	},
}

func init() {
	outreachRunCmd.Flags().Int("limit", 0, "max leads to attempt (default from config)")
	outreachRunCmd.Flags().Bool("dry-run", true, "record emails without sending (default from config)")
	outreachSendCmd.Flags().Bool("dry-run", true, "record the email without sending (default from config)")
	outreachHistoryCmd.Flags().Int("limit", 50, "max number of emails to display")

	outreachCmd.AddCommand(outreachRunCmd)
	outreachCmd.AddCommand(outreachSendCmd)
	outreachCmd.AddCommand(outreachHistoryCmd)
	rootCmd.AddCommand(outreachCmd)
}
