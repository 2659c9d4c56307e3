// Package drug defines the Drug Record, the persisted result of enriching a
// registry item name with the government product-permission detail.
package drug

import (
	"strings"
	"time"
)

// DefaultLayer is the ingredient layer used when the total-dose context
// carries no "중" delimiter.
const DefaultLayer = "기본"

// Ingredient is one active ingredient of a layer.
type Ingredient struct {
	Name   string `json:"성분명"`
	Amount string `json:"분량"`
}

// Ingredients maps a layer name (e.g. "1정", "기본") to its ingredient.
type Ingredients map[string]Ingredient

// Drug is the full stored record. JSON field names follow the registry's
// Korean column names so the record can be handed to the language model and
// to operators unchanged.
type Drug struct {
	ID           int64       `json:"drug_id,omitempty"`
	ItemName     string      `json:"품목명"`
	Ingredients  Ingredients `json:"주성분"`
	Summary      string      `json:"요약_보고서"`
	Appearance   string      `json:"성상,omitempty"`
	Efficacy     string      `json:"효능효과,omitempty"`
	Dosage       string      `json:"용법용량,omitempty"`
	Precautions  string      `json:"주의사항,omitempty"`
	Storage      string      `json:"저장방법,omitempty"`
	ValidTerm    string      `json:"유효기간,omitempty"`
	ReexamPeriod string      `json:"재심사기간,omitempty"`
	PackUnit     string      `json:"포장단위,omitempty"`
	PermitKind   string      `json:"허가종류,omitempty"`
	MakeMaterial string      `json:"제조_수입,omitempty"`
	Manufacturer string      `json:"업체명,omitempty"`
	ItemSeq      string      `json:"품목일련번호,omitempty"`
	PermitDate   string      `json:"허가일자,omitempty"`
	EtcOtc       string      `json:"전문_일반,omitempty"`
	ReexamTarget string      `json:"재심사대상,omitempty"`
	CreatedAt    time.Time   `json:"-"`
	UpdatedAt    time.Time   `json:"-"`
}

// IsEnriched reports whether the record carries a generated summary. A record
// without one still needs an enrichment pass.
func (d *Drug) IsEnriched() bool {
	return d != nil && strings.TrimSpace(d.Summary) != ""
}

// Projection is the reduced view returned to callers of the pipeline.
type Projection struct {
	ItemName    string      `json:"품목명"`
	Ingredients Ingredients `json:"주성분"`
	Summary     string      `json:"요약_보고서"`
}

// Projection returns the simplified {품목명, 주성분, 요약_보고서} view.
func (d *Drug) Projection() *Projection {
	if d == nil {
		return nil
	}
	ing := d.Ingredients
	if ing == nil {
		ing = Ingredients{}
	}
	return &Projection{ItemName: d.ItemName, Ingredients: ing, Summary: d.Summary}
}
