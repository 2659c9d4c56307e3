package opendata

import (
	"context"
	"net/url"
	"strconv"
)

const durService = "DURPrdlstInfoService03"

// DUREndpoint is one DUR (drug utilisation review) operation.
type DUREndpoint struct {
	Operation   string
	Description string
}

// DUREndpoints lists the operations queried for a safety report, in report order.
var DUREndpoints = []DUREndpoint{
	{"getUsjntTabooInfoList03", "병용금기 정보조회"},
	{"getOdsnAtentInfoList03", "노인주의 정보조회"},
	{"getDurPrdlstInfoList03", "DUR품목정보 조회"},
	{"getSpcifyAgrdeTabooInfoList03", "특정연령대금기 정보조회"},
	{"getCpctyAtentInfoList03", "용량주의 정보조회"},
	{"getMdctnPdAtentInfoList03", "투여기간주의 정보조회"},
	{"getEfcyDplctInfoList03", "효능군중복 정보조회"},
	{"getSeobangjeongPartitnAtentInfoList03", "서방정분할주의 정보조회"},
	{"getPwnmTabooInfoList03", "임부금기 정보조회"},
}

// DURService queries the DUR product information registry.
type DURService struct {
	client *Client
	rows   int
}

// Fetch returns the rows of one DUR operation for itemName. An empty
// answer is an empty slice.
func (s *DURService) Fetch(ctx context.Context, operation, itemName string) ([]Item, error) {
	params := url.Values{}
	params.Set("itemName", itemName)
	params.Set("numOfRows", strconv.Itoa(s.rows))
	return s.client.getItems(ctx, "opendata_dur", durService+"/"+operation, params)
}
