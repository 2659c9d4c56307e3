// Package safety builds DUR (drug utilisation review) reports from the nine
// DUR product information operations.
package safety

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/internal/infrastructure/opendata"
	"github.com/turtacn/livecare/internal/intelligence/common"
	"github.com/turtacn/livecare/pkg/errors"
)

// DURFetcher is satisfied by *opendata.DURService.
type DURFetcher interface {
	Fetch(ctx context.Context, operation, itemName string) ([]opendata.Item, error)
}

// Section is the answer of one DUR operation. Items is nil when the
// operation failed or returned nothing.
type Section struct {
	Operation   string          `json:"operation"`
	Description string          `json:"description"`
	Items       []opendata.Item `json:"items"`
}

// Report is the DUR safety report of one item, sections in endpoint order.
type Report struct {
	ItemName string    `json:"item_name"`
	Sections []Section `json:"sections"`
}

// ByOperation returns operation → items, nil for empty sections.
func (r *Report) ByOperation() map[string][]opendata.Item {
	out := make(map[string][]opendata.Item, len(r.Sections))
	for _, s := range r.Sections {
		out[s.Operation] = s.Items
	}
	return out
}

// Service fetches DUR reports.
type Service struct {
	dur         DURFetcher
	endpoints   []opendata.DUREndpoint
	logger      logging.Logger
	metrics     *prometheus.PipelineMetrics
	unitTimeout time.Duration
}

func NewService(dur DURFetcher, logger logging.Logger, metrics *prometheus.PipelineMetrics) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		dur:         dur,
		endpoints:   opendata.DUREndpoints,
		logger:      logger.Named("safety"),
		metrics:     metrics,
		unitTimeout: common.DefaultUnitTimeout,
	}
}

// Report queries every DUR operation concurrently. A failing operation
// yields an empty section and never fails the report.
func (s *Service) Report(ctx context.Context, itemName string) (*Report, error) {
	itemName = strings.TrimSpace(itemName)
	if itemName == "" {
		return nil, errors.InvalidParam("item name is required")
	}
	defer logging.Timed(s.logger, "safety.report", logging.String("item_name", itemName))()

	results := common.Run(ctx, s.endpoints, func(ctx context.Context, ep opendata.DUREndpoint) ([]opendata.Item, error) {
		return s.dur.Fetch(ctx, ep.Operation, itemName)
	},
		common.WithStage("dur"),
		common.WithConcurrency(len(s.endpoints)),
		common.WithUnitTimeout(s.unitTimeout),
		common.WithLogger(s.logger),
		common.WithMetrics(s.metrics),
	)

	report := &Report{ItemName: itemName, Sections: make([]Section, len(s.endpoints))}
	for i, ep := range s.endpoints {
		sec := Section{Operation: ep.Operation, Description: ep.Description}
		r := results[i]
		switch {
		case !r.OK():
			s.logger.Warn("DUR operation failed",
				logging.String("operation", ep.Operation), logging.String("item_name", itemName), logging.Err(r.Err))
		case len(r.Value) > 0:
			sec.Items = r.Value
		}
		report.Sections[i] = sec
	}
	return report, nil
}
