// Package encounter turns recorded consultations into medical charts and
// owns chart maintenance for both chart kinds.
package encounter

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/turtacn/livecare/internal/domain/chart"
	"github.com/turtacn/livecare/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/internal/infrastructure/speech"
	"github.com/turtacn/livecare/pkg/errors"
)

// File is an uploaded recording.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result is a voice chart and whether it was replayed from an earlier
// upload of the same recording.
type Result struct {
	Chart     *chart.Chart `json:"chart"`
	Duplicate bool         `json:"duplicate"`
}

// ChartComposer writes a chart from a transcript. *llm.Client satisfies it.
type ChartComposer interface {
	ComposeEncounterChart(ctx context.Context, transcript string) (string, error)
}

// ChartEvents announces persisted charts.
type ChartEvents interface {
	ChartCreated(ctx context.Context, payload kafka.ChartCreatedPayload) error
}

// Service is the encounter application service.
type Service interface {
	Transcribe(ctx context.Context, f File) (*Result, error)
	GetChart(ctx context.Context, kind chart.Kind, id int64) (*chart.Chart, error)
	// UpdateChart replaces the content of chart id. payloadID must equal id.
	UpdateChart(ctx context.Context, kind chart.Kind, id, payloadID int64, content string) error
}

type serviceImpl struct {
	charts      chart.Repository
	transcriber speech.Transcriber
	composer    ChartComposer
	events      ChartEvents
	metrics     *prometheus.PipelineMetrics
	logger      logging.Logger
}

// Option configures the service.
type Option func(*serviceImpl)

func WithEvents(e ChartEvents) Option {
	return func(s *serviceImpl) { s.events = e }
}

func WithMetrics(m *prometheus.PipelineMetrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

func NewService(charts chart.Repository, transcriber speech.Transcriber, composer ChartComposer, logger logging.Logger, opts ...Option) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		charts:      charts,
		transcriber: transcriber,
		composer:    composer,
		logger:      logger.Named("encounter"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FileHash is the hex MD5 of data, used to recognise replayed uploads.
func FileHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (s *serviceImpl) Transcribe(ctx context.Context, f File) (*Result, error) {
	if len(f.Data) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "recording is empty").WithDetail(f.Name)
	}
	done := s.metrics.TrackWorkflow("encounter")
	defer done()
	defer logging.Timed(s.logger, "encounter.transcribe", logging.String("file", f.Name))()

	hash := FileHash(f.Data)
	existing, err := s.charts.FindByFileHash(ctx, hash)
	switch {
	case err == nil:
		s.metrics.RecordVoiceDuplicate()
		s.logger.Info("duplicate recording, returning stored chart",
			logging.String("file_hash", hash), logging.Int64("chart_id", existing.ID))
		return &Result{Chart: existing, Duplicate: true}, nil
	case !errors.IsNotFound(err):
		return nil, err
	}

	tr, err := s.transcriber.Transcribe(ctx, f.Name, f.Data)
	if err != nil {
		return nil, err
	}
	s.logger.Info("recording transcribed", logging.String("file", f.Name), logging.Int("segments", len(tr.Segments)))

	content, err := s.composer.ComposeEncounterChart(ctx, tr.Text)
	if err != nil {
		return nil, err
	}

	c := &chart.Chart{
		Kind:    chart.KindVoice,
		Content: content,
		File: &chart.FileMetadata{
			Name: f.Name,
			Size: int64(len(f.Data)),
			Type: f.ContentType,
			Hash: hash,
		},
	}
	id, err := s.charts.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	s.metrics.RecordChartCreated(string(chart.KindVoice))
	s.logger.Info("voice chart stored", logging.Int64("chart_id", id), logging.String("file_hash", hash))

	if s.events != nil {
		if err := s.events.ChartCreated(ctx, kafka.ChartCreatedPayload{
			ChartID:   id,
			Kind:      string(chart.KindVoice),
			CreatedAt: c.CreatedAt,
		}); err != nil {
			s.logger.Warn("chart event not published", logging.Int64("chart_id", id), logging.Err(err))
		}
	}
	return &Result{Chart: c}, nil
}

func (s *serviceImpl) GetChart(ctx context.Context, kind chart.Kind, id int64) (*chart.Chart, error) {
	return s.charts.FindByID(ctx, kind, id)
}

func (s *serviceImpl) UpdateChart(ctx context.Context, kind chart.Kind, id, payloadID int64, content string) error {
	if _, err := s.charts.FindByID(ctx, kind, id); err != nil {
		return err
	}
	if id != payloadID {
		mismatch := errors.New(errors.ErrCodeChartIDMismatch, "chart id in request does not match payload id").
			WithDetail(strconv.FormatInt(id, 10) + " != " + strconv.FormatInt(payloadID, 10))
		return errors.Wrap(mismatch, errors.ErrCodeValidation, "invalid chart update")
	}
	ok, err := s.charts.UpdateContent(ctx, kind, id, content)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.ErrCodeDatabaseError, "chart update failed").WithDetail(strconv.FormatInt(id, 10))
	}
	s.logger.Info("chart updated", logging.String("kind", string(kind)), logging.Int64("chart_id", id))
	return nil
}
