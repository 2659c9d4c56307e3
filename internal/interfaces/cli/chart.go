package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/livecare/internal/application/encounter"
	"github.com/turtacn/livecare/internal/domain/chart"
	"github.com/turtacn/livecare/pkg/errors"
)

// ChartView renders a stored chart.
type ChartView struct {
	*chart.Chart
	Duplicate bool `json:"duplicate,omitempty"`
}

func (v ChartView) RenderText(w io.Writer) error {
	c := v.Chart
	header := fmt.Sprintf("%s chart #%d", c.Kind, c.ID)
	if c.PatientID != nil {
		header += fmt.Sprintf(" for patient #%d", *c.PatientID)
	}
	if v.Duplicate {
		header += " (recording seen before, stored chart returned)"
	}
	fmt.Fprintln(w, header)
	if c.File != nil {
		fmt.Fprintf(w, "recording: %s, %d bytes, %s, md5 %s\n", c.File.Name, c.File.Size, orDash(c.File.Type), c.File.Hash)
	}
	if !c.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated: %s\n", c.UpdatedAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintln(w)
	_, err := fmt.Fprintln(w, c.Content)
	return err
}

func newEncounterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encounter",
		Short: "Chart recorded consultations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a recording and write a medical chart",
		Long: "Transcribes the recording and composes a medical chart from the transcript.\n" +
			"A recording whose MD5 matches an earlier upload returns the stored chart.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			in, err := readInput(args[0])
			if err != nil {
				return err
			}
			svc, err := cliCtx.Backend.Encounter()
			if err != nil {
				return err
			}
			res, err := svc.Transcribe(ctx, encounter.File{Name: in.Name, ContentType: in.ContentType, Data: in.Data})
			if err != nil {
				return err
			}
			return PrintResult(cmd, ChartView{Chart: res.Chart, Duplicate: res.Duplicate})
		},
	})
	return cmd
}

func newChartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Show and edit stored charts",
	}
	cmd.AddCommand(newChartShowCmd(), newChartUpdateCmd())
	return cmd
}

func chartArgs(args []string) (chart.Kind, int64, error) {
	kind, err := chart.ParseKind(args[0])
	if err != nil {
		return "", 0, err
	}
	id, err := parseID("chart id", args[1])
	if err != nil {
		return "", 0, err
	}
	return kind, id, nil
}

func newChartShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <prescription|voice> <id>",
		Short: "Print a chart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := chartArgs(args)
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc, err := cliCtx.Backend.Encounter()
			if err != nil {
				return err
			}
			c, err := svc.GetChart(ctx, kind, id)
			if err != nil {
				return err
			}
			return PrintResult(cmd, ChartView{Chart: c})
		},
	}
}

func newChartUpdateCmd() *cobra.Command {
	var (
		content   string
		file      string
		payloadID int64
	)
	cmd := &cobra.Command{
		Use:   "update <prescription|voice> <id>",
		Short: "Replace the content of a chart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := chartArgs(args)
			if err != nil {
				return err
			}
			switch {
			case content == "" && file == "":
				return errors.New(errors.ErrCodeValidation, "one of --content or --file is required")
			case content != "" && file != "":
				return errors.New(errors.ErrCodeValidation, "--content and --file are mutually exclusive")
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return errors.Wrapf(err, errors.ErrCodeValidation, "cannot read %s", file)
				}
				content = string(data)
			}
			if !cmd.Flags().Changed("payload-id") {
				payloadID = id
			}

			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc, err := cliCtx.Backend.Encounter()
			if err != nil {
				return err
			}
			if err := svc.UpdateChart(ctx, kind, id, payloadID, content); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("%s chart #%d updated", kind, id))
			return nil
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "new chart content")
	cmd.Flags().StringVar(&file, "file", "", "read the new chart content from a file")
	cmd.Flags().Int64Var(&payloadID, "payload-id", 0, "chart id carried by the edited document (defaults to <id>)")
	return cmd
}
