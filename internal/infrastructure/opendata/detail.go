package opendata

import (
	"context"
	"net/url"
	"strconv"
)

const detailPath = "DrugPrdtPrmsnInfoService06/getDrugPrdtPrmsnDtlInq05"

// ProductDetail is the permit detail of one product. The *Doc fields hold
// the raw tagged document text.
type ProductDetail struct {
	ItemName         string
	ItemSeq          string
	EntpName         string
	PermitDate       string
	EtcOtcCode       string
	Chart            string
	MaterialName     string
	StorageMethod    string
	ValidTerm        string
	ReexamTarget     string
	ReexamDate       string
	PackUnit         string
	PermitKindName   string
	MakeMaterialFlag string
	EfficacyDoc      string
	DosageDoc        string
	PrecautionDoc    string
	AdverseDoc       string
}

func productDetailFromItem(it Item) *ProductDetail {
	return &ProductDetail{
		ItemName:         it.ItemName(),
		ItemSeq:          it.String("ITEM_SEQ"),
		EntpName:         it.String("ENTP_NAME"),
		PermitDate:       it.String("ITEM_PERMIT_DATE"),
		EtcOtcCode:       it.String("ETC_OTC_CODE"),
		Chart:            it.String("CHART"),
		MaterialName:     it.String("MATERIAL_NAME"),
		StorageMethod:    it.String("STORAGE_METHOD"),
		ValidTerm:        it.String("VALID_TERM"),
		ReexamTarget:     it.String("REEXAM_TARGET"),
		ReexamDate:       it.String("REEXAM_DATE"),
		PackUnit:         it.String("PACK_UNIT"),
		PermitKindName:   it.String("PERMIT_KIND_NAME"),
		MakeMaterialFlag: it.String("MAKE_MATERIAL_FLAG"),
		EfficacyDoc:      it.String("EE_DOC_DATA"),
		DosageDoc:        it.String("UD_DOC_DATA"),
		PrecautionDoc:    it.String("PN_DOC_DATA"),
		AdverseDoc:       it.String("NB_DOC_DATA"),
	}
}

// DetailService queries the product permit detail registry.
type DetailService struct {
	client *Client
	rows   int
}

// Fetch returns the first detail row for itemName, or nil when the
// registry has none.
func (s *DetailService) Fetch(ctx context.Context, itemName string) (*ProductDetail, error) {
	params := url.Values{}
	params.Set("item_name", itemName)
	params.Set("numOfRows", strconv.Itoa(s.rows))

	items, err := s.client.getItems(ctx, "opendata_detail", detailPath, params)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return productDetailFromItem(items[0]), nil
}
