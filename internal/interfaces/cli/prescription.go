package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/livecare/internal/application/prescription"
	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/domain/patient"
	"github.com/turtacn/livecare/pkg/errors"
)

// FileOutcome is the result of one processed document.
type FileOutcome struct {
	File   string               `json:"file"`
	Result *prescription.Result `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// ProcessReport is the output of prescription process.
type ProcessReport struct {
	Files []FileOutcome `json:"files"`
}

func (r ProcessReport) RenderText(w io.Writer) error {
	for i, f := range r.Files {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s ==\n", f.File)
		if f.Error != "" {
			fmt.Fprintf(w, "failed: %s\n", f.Error)
			continue
		}
		res := f.Result
		fmt.Fprintf(w, "chart #%d\n", res.ChartID)
		fmt.Fprintln(w, describePatient(res.Patient))
		fmt.Fprint(w, projectionTable(res.Drugs))
		fmt.Fprintln(w)
		fmt.Fprintln(w, res.Result)
	}
	return nil
}

func describePatient(p *patient.Patient) string {
	if p == nil {
		return "patient: -"
	}
	age := "?"
	if p.Age != nil {
		age = fmt.Sprintf("%d", *p.Age)
	}
	return fmt.Sprintf("patient #%d: %s, age %s, %s; medications: %s",
		p.ID, orDash(p.Name), age, orDash(p.Gender), orDash(strings.Join(p.Medications, ", ")))
}

func projectionTable(drugs []*drug.Projection) string {
	rows := make([][]string, 0, len(drugs))
	for _, d := range drugs {
		rows = append(rows, []string{d.ItemName, ingredientSummary(d.Ingredients), firstLine(d.Summary)})
	}
	return FormatTable([]string{"품목명", "주성분", "요약"}, rows)
}

func ingredientSummary(ing drug.Ingredients) string {
	parts := make([]string, 0, len(ing))
	for _, layer := range sortedLayers(ing) {
		in := ing[layer]
		parts = append(parts, fmt.Sprintf("%s: %s %s", layer, in.Name, in.Amount))
	}
	return strings.Join(parts, "; ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func newPrescriptionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prescription",
		Short: "Process prescription documents",
	}

	var fromText bool
	process := &cobra.Command{
		Use:   "process <file>...",
		Short: "OCR each document, enrich its drugs and write a care chart",
		Long: "Runs the full prescription workflow for every file: archive upload, OCR,\n" +
			"drug name resolution, patient extraction, drug enrichment and care chart\n" +
			"composition. Several files are processed concurrently.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrescriptionProcess(cmd, args, fromText)
		},
	}
	process.Flags().BoolVar(&fromText, "from-text", false, "treat files as already recognised text and skip OCR")

	cmd.AddCommand(process)
	return cmd
}

func runPrescriptionProcess(cmd *cobra.Command, paths []string, fromText bool) error {
	cliCtx, ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	svc, err := cliCtx.Backend.Prescription()
	if err != nil {
		return err
	}

	files := make([]prescription.File, 0, len(paths))
	for _, p := range paths {
		in, err := readInput(p)
		if err != nil {
			return err
		}
		files = append(files, prescription.File{Name: in.Name, ContentType: in.ContentType, Data: in.Data})
	}

	report := ProcessReport{Files: make([]FileOutcome, len(files))}
	var firstErr error
	record := func(i int, res *prescription.Result, err error) {
		report.Files[i] = FileOutcome{File: files[i].Name, Result: res}
		if err != nil {
			report.Files[i].Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	switch {
	case fromText:
		for i, f := range files {
			res, err := svc.ProcessText(ctx, string(f.Data))
			record(i, res, err)
		}
	case len(files) == 1:
		res, err := svc.Process(ctx, files[0])
		if err != nil {
			return err
		}
		record(0, res, nil)
	default:
		for i, r := range svc.ProcessFiles(ctx, files) {
			record(i, r.Value, r.Err)
		}
	}

	if err := PrintResult(cmd, report); err != nil {
		return err
	}
	if firstErr != nil {
		failed := 0
		for _, f := range report.Files {
			if f.Error != "" {
				failed++
			}
		}
		return errors.Wrapf(firstErr, errors.GetCode(firstErr), "%d of %d documents failed", failed, len(files))
	}
	return nil
}
