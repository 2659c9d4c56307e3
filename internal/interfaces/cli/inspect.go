package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/livecare/internal/application/safety"
	"github.com/turtacn/livecare/internal/domain/patient"
	"github.com/turtacn/livecare/internal/infrastructure/opendata"
)

// durColumns are shown first in the DUR text layout when present.
var durColumns = []string{"TYPE_NAME", "MIXTURE_ITEM_NAME", "PROHBT_CONTENT", "REMARK"}

// SafetyView renders a DUR report.
type SafetyView struct{ *safety.Report }

func (v SafetyView) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "DUR report for %s\n", v.ItemName)
	for _, sec := range v.Sections {
		fmt.Fprintf(w, "\n[%s] %s\n", sec.Description, sec.Operation)
		if len(sec.Items) == 0 {
			fmt.Fprintln(w, "  -")
			continue
		}
		for _, it := range sec.Items {
			fmt.Fprintf(w, "  - %s\n", durLine(it))
		}
	}
	return nil
}

func durLine(it opendata.Item) string {
	var parts []string
	for _, col := range durColumns {
		if v := it.String(col); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return it.ItemName()
	}
	return strings.Join(parts, " | ")
}

func newDURCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dur <item-name>",
		Short: "Query every DUR safety list for an item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc, err := cliCtx.Backend.Safety()
			if err != nil {
				return err
			}
			rep, err := svc.Report(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return PrintResult(cmd, SafetyView{rep})
		},
	}
}

// PatientView renders a Patient Record.
type PatientView struct{ *patient.Patient }

func (v PatientView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintln(w, describePatient(v.Patient))
	return err
}

func newPatientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Inspect Patient Records",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a Patient Record and its medications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("patient id", args[0])
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			repo, err := cliCtx.Backend.Patients()
			if err != nil {
				return err
			}
			p, err := repo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			return PrintResult(cmd, PatientView{p})
		},
	})
	return cmd
}

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Pipeline metrics",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Write the metric registry in the Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return cliCtx.Backend.Metrics().WriteText(cmd.OutOrStdout())
		},
	})
	return cmd
}

// BuildInfo is the output of the version command.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func (b BuildInfo) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "livecare %s (commit %s, built %s, %s)\n", b.Version, b.Commit, b.BuildDate, b.GoVersion)
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// No configuration or backend is needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			info := BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate, GoVersion: runtime.Version()}
			if f := cmd.Flag("output"); f != nil && strings.EqualFold(f.Value.String(), "json") {
				return printJSON(cmd.OutOrStdout(), info)
			}
			return info.RenderText(cmd.OutOrStdout())
		},
	}
}
