package opendata

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
)

const grainPath = "MdcinGrnIdntfcInfoService01/getMdcinGrnIdntfcInfoList01"

// trailingDigits matches any decimal digits, so fullwidth OCR output retries too.
var trailingDigits = regexp.MustCompile(`\p{Nd}+$`)

// GrainService queries the pill identification registry.
type GrainService struct {
	client *Client
	rows   int
}

// Lookup resolves term against the registry and returns the term that
// produced the answer with its items. When two or more items come back,
// only those whose ITEM_NAME starts with the term are kept, unless none do.
// An empty answer for a term ending in digits is retried once with the
// digits stripped. Items are nil when nothing was found or the call failed;
// failures are logged, never returned.
func (s *GrainService) Lookup(ctx context.Context, term string) (string, []Item) {
	retried := false
	for {
		items, err := s.query(ctx, term)
		if err != nil {
			s.client.logger.Warn("pill lookup failed", logging.String("term", term), logging.Err(err))
			s.client.metrics.RecordGrainLookup(prometheus.OutcomeError)
			return term, nil
		}
		if len(items) > 0 {
			outcome := prometheus.LookupHit
			if retried {
				outcome = prometheus.LookupRetryHit
			}
			s.client.metrics.RecordGrainLookup(outcome)
			return term, preferPrefixed(term, items)
		}

		stripped := trailingDigits.ReplaceAllString(term, "")
		if stripped == term || stripped == "" {
			s.client.logger.Debug("pill lookup found nothing", logging.String("term", term))
			s.client.metrics.RecordGrainLookup(prometheus.LookupMiss)
			return term, nil
		}
		s.client.logger.Debug("retrying pill lookup without numeric suffix",
			logging.String("term", term), logging.String("retry", stripped))
		term = stripped
		retried = true
	}
}

func (s *GrainService) query(ctx context.Context, term string) ([]Item, error) {
	params := url.Values{}
	params.Set("item_name", term)
	params.Set("numOfRows", strconv.Itoa(s.rows))
	return s.client.getItems(ctx, "opendata_grain", grainPath, params)
}

func preferPrefixed(term string, items []Item) []Item {
	if len(items) < 2 {
		return items
	}
	filtered := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.HasPrefix(it.ItemName(), term) {
			filtered = append(filtered, it)
		}
	}
	if len(filtered) == 0 {
		return items
	}
	return filtered
}
