package enrichment

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/infrastructure/opendata"
	"github.com/turtacn/livecare/internal/intelligence/drug_extractor"
	"github.com/turtacn/livecare/pkg/errors"
)

// BuildDrug maps a permit detail row onto the stored schema. Absent fields
// stay empty; the summary is left for the caller to fill.
func BuildDrug(d *opendata.ProductDetail) *drug.Drug {
	return &drug.Drug{
		ItemName:     strings.TrimSpace(d.ItemName),
		Ingredients:  drug_extractor.ParseIngredients(d.MaterialName),
		Appearance:   d.Chart,
		Efficacy:     drug_extractor.CleanDocument(d.EfficacyDoc),
		Dosage:       drug_extractor.CleanDocument(d.DosageDoc),
		Precautions:  drug_extractor.CleanDocument(d.PrecautionDoc),
		Storage:      d.StorageMethod,
		ValidTerm:    d.ValidTerm,
		ReexamPeriod: d.ReexamDate,
		PackUnit:     d.PackUnit,
		PermitKind:   d.PermitKindName,
		MakeMaterial: d.MakeMaterialFlag,
		Manufacturer: d.EntpName,
		ItemSeq:      d.ItemSeq,
		PermitDate:   d.PermitDate,
		EtcOtc:       d.EtcOtcCode,
		ReexamTarget: d.ReexamTarget,
	}
}

// referenceData renders the record as the JSON handed to the summarizer.
// Markup stays unescaped so the model sees the ARTICLE titles as written.
func referenceData(d *drug.Drug) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode reference data")
	}
	return strings.TrimSpace(buf.String()), nil
}
