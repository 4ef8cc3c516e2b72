package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/export"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and manage leads",
}

func leadFilterFromFlags(cmd *cobra.Command) (model.LeadFilter, error) {
	var filter model.LeadFilter
	if raw, _ := cmd.Flags().GetString("status"); raw != "" {
		status, err := model.ParseLeadStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	return filter, nil
}

func parseLeadID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid lead id %q", raw)
	}
	return id, nil
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := leadFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "leads list")
		}

		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeadsList(os.Stdout, leads)
		return nil
	},
}

// -- leads show --

var leadsShowCmd = &cobra.Command{
	Use:   "show <lead-id>",
	Short: "Show full details of a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := parseLeadID(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lead, err := st.GetLead(ctx, id)
		if err != nil {
			return eris.Wrap(err, "leads show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lead)
	},
}

// -- leads stats --

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lead counts by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.LeadStats(ctx)
		if err != nil {
			return eris.Wrap(err, "leads stats")
		}

		formatLeadStats(os.Stdout, stats)
		return nil
	},
}

// -- leads status --

var leadsStatusCmd = &cobra.Command{
	Use:   "status <lead-id> <status>",
	Short: "Move a lead to a new status (e.g. replied, rejected)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := parseLeadID(args[0])
		if err != nil {
			return err
		}
		to, err := model.ParseLeadStatus(args[1])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lead, err := pipeline.NewService(st).TransitionLead(ctx, id, to)
		if err != nil {
			return eris.Wrap(err, "leads status")
		}
		fmt.Fprintf(os.Stdout, "Lead %d is now %s.\n", lead.ID, lead.Status)
		return nil
	},
}

// -- leads export --

var leadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads to XLSX or CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := leadFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		format := export.FormatFromPath(out)
		if raw, _ := cmd.Flags().GetString("format"); raw != "" {
			if format, err = export.ParseFormat(raw); err != nil {
				return err
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "leads export")
		}

		var w io.Writer = os.Stdout
		if out != "" && out != "-" {
			f, err := os.Create(out)
			if err != nil {
				return eris.Wrap(err, "leads export: create file")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		if err := export.Write(w, format, leads); err != nil {
			return err
		}
		if out != "" && out != "-" {
			fmt.Fprintf(os.Stderr, "Exported %d leads to %s.\n", len(leads), out)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{leadsListCmd, leadsExportCmd} {
		c.Flags().String("status", "", "filter by lead status (new, qualified, emailed, replied, rejected)")
	}
	leadsListCmd.Flags().Int("limit", 50, "max number of leads to display")
	leadsExportCmd.Flags().Int("limit", 1000, "max number of leads to export")
	leadsExportCmd.Flags().String("format", "", "xlsx or csv (default from --out extension, else xlsx)")
	leadsExportCmd.Flags().String("out", "leads.xlsx", "output file, or - for stdout")

	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsShowCmd)
	leadsCmd.AddCommand(leadsStatsCmd)
	leadsCmd.AddCommand(leadsStatusCmd)
	leadsCmd.AddCommand(leadsExportCmd)
	rootCmd.AddCommand(leadsCmd)
}
