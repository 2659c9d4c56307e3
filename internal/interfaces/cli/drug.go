package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/intelligence/drug_extractor"
	"github.com/turtacn/livecare/pkg/errors"
)

// DrugView renders a full Drug Record.
type DrugView struct{ *drug.Drug }

func (v DrugView) MarshalJSON() ([]byte, error) { return json.Marshal(v.Drug) }

func (v DrugView) RenderText(w io.Writer) error {
	d := v.Drug
	fmt.Fprintf(w, "#%d %s\n", d.ID, d.ItemName)
	fields := []struct{ label, value string }{
		{"업체명", d.Manufacturer},
		{"전문/일반", d.EtcOtc},
		{"허가일자", d.PermitDate},
		{"성상", d.Appearance},
		{"주성분", ingredientSummary(d.Ingredients)},
		{"저장방법", d.Storage},
		{"유효기간", d.ValidTerm},
		{"포장단위", d.PackUnit},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) != "" {
			fmt.Fprintf(w, "%s: %s\n", f.label, f.value)
		}
	}
	for _, doc := range []struct{ label, value string }{
		{"효능효과", d.Efficacy},
		{"용법용량", d.Dosage},
		{"요약 보고서", d.Summary},
	} {
		if strings.TrimSpace(doc.value) != "" {
			fmt.Fprintf(w, "\n[%s]\n%s\n", doc.label, doc.value)
		}
	}
	return nil
}

// EnrichReport is the output of drug enrich.
type EnrichReport struct {
	Drugs   []*drug.Projection `json:"drugs"`
	Missing []string           `json:"missing"`
}

func (r EnrichReport) RenderText(w io.Writer) error {
	fmt.Fprint(w, projectionTable(r.Drugs))
	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "\nno record produced: %s\n", strings.Join(r.Missing, ", "))
	}
	return nil
}

// ResolutionView renders a candidate resolution trace.
type ResolutionView struct{ *drug_extractor.Resolution }

func (v ResolutionView) MarshalJSON() ([]byte, error) { return json.Marshal(v.Resolution) }

func (v ResolutionView) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "candidates: %s\n\n", strings.Join(v.Candidates, ", "))
	rows := make([][]string, 0, len(v.Matches))
	for _, m := range v.Matches {
		rows = append(rows, []string{m.Term, m.Resolved, orDash(m.ItemName)})
	}
	fmt.Fprint(w, FormatTable([]string{"term", "resolved", "item"}, rows))
	_, err := fmt.Fprintf(w, "\nitem names: %s\n", orDash(strings.Join(v.ItemNames, ", ")))
	return err
}

func sortedLayers(ing drug.Ingredients) []string {
	layers := make([]string, 0, len(ing))
	for k := range ing {
		layers = append(layers, k)
	}
	sort.Strings(layers)
	return layers
}

func newDrugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drug",
		Short: "Inspect, enrich and edit Drug Records",
	}
	cmd.AddCommand(newDrugShowCmd(), newDrugUpdateCmd(), newDrugEnrichCmd(), newDrugCandidatesCmd())
	return cmd
}

func newDrugShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-name|id>",
		Short: "Print a stored Drug Record",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc, err := cliCtx.Backend.Enrichment()
			if err != nil {
				return err
			}
			d, err := svc.FindDrug(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return PrintResult(cmd, DrugView{d})
		},
	}
}

func newDrugUpdateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update <id> --file record.json",
		Short: "Overwrite a Drug Record from a JSON document",
		Long: "Replaces every attribute of the record with the JSON document, which uses\n" +
			"the same Korean field names that drug show --output json prints. The\n" +
			"cached projection of the record is evicted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("drug id", args[0])
			if err != nil {
				return err
			}
			if file == "" {
				return errors.New(errors.ErrCodeValidation, "--file is required")
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrapf(err, errors.ErrCodeValidation, "cannot read %s", file)
			}
			var d drug.Drug
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&d); err != nil {
				return errors.Wrap(err, errors.ErrCodeValidation, "drug record is not valid JSON")
			}

			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc, err := cliCtx.Backend.Enrichment()
			if err != nil {
				return err
			}
			updated, err := svc.UpdateDrug(ctx, id, &d)
			if err != nil {
				return err
			}
			return PrintResult(cmd, DrugView{updated})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON document with the new record")
	return cmd
}

func newDrugEnrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <item-name>...",
		Short: "Fetch, summarise and store Drug Records for registry item names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc, err := cliCtx.Backend.Enrichment()
			if err != nil {
				return err
			}
			results := svc.EnrichBatch(ctx, args)
			report := EnrichReport{Drugs: svc.Filter(args, results), Missing: []string{}}
			for i, r := range results {
				if !r.OK() || r.Value == nil {
					report.Missing = append(report.Missing, args[i])
				}
			}
			return PrintResult(cmd, report)
		},
	}
}

func newDrugCandidatesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "candidates <text>|--file path",
		Short: "Show which registry items a text mentions, without storing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := textArgument(args, file)
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			resolver, err := cliCtx.Backend.Resolver()
			if err != nil {
				return err
			}
			return PrintResult(cmd, ResolutionView{resolver.Resolve(ctx, text)})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read the text from a file")
	return cmd
}
