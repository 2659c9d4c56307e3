// Package prescription runs the prescription workflow: archive the
// document, recognise its text, resolve and enrich the medications, store
// the patient and compose the multidisciplinary care chart.
package prescription

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/livecare/internal/application/enrichment"
	"github.com/turtacn/livecare/internal/domain/chart"
	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/domain/patient"
	"github.com/turtacn/livecare/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/internal/infrastructure/ocr"
	"github.com/turtacn/livecare/internal/infrastructure/storage/minio"
	"github.com/turtacn/livecare/internal/intelligence/common"
	"github.com/turtacn/livecare/pkg/errors"
)

const archiveTimeout = 2 * time.Minute

// File is an uploaded prescription document.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result is the outcome of one processed prescription.
type Result struct {
	ChartID int64              `json:"chart_id"`
	Result  string             `json:"result"`
	Patient *patient.Patient   `json:"patient"`
	Drugs   []*drug.Projection `json:"drugs"`
}

// Archiver stores the original document. *minio.Archive satisfies it.
type Archiver interface {
	Upload(ctx context.Context, fileName string, data []byte, contentType string) (*minio.UploadResult, error)
}

// ItemResolver maps text to registry item names.
// *drug_extractor.Resolver satisfies it.
type ItemResolver interface {
	ResolveItemNames(ctx context.Context, text string) []string
}

// Assistant is the language model surface the workflow needs.
// *llm.Client satisfies it.
type Assistant interface {
	ExtractMetadata(ctx context.Context, text string) (*patient.Metadata, error)
	ComposeCareChart(ctx context.Context, p *patient.Patient, drugs []*drug.Projection) (string, error)
}

// ChartEvents announces persisted charts.
// *kafka.ChartEventPublisher satisfies it.
type ChartEvents interface {
	ChartCreated(ctx context.Context, payload kafka.ChartCreatedPayload) error
}

// Service is the prescription application service.
type Service interface {
	// Process runs the whole workflow for one document.
	Process(ctx context.Context, f File) (*Result, error)

	// ProcessText runs the workflow from already recognised text.
	ProcessText(ctx context.Context, text string) (*Result, error)

	// ProcessFiles processes several documents concurrently. Results are
	// index-aligned with files.
	ProcessFiles(ctx context.Context, files []File) []common.Result[*Result]

	// Drain waits for background archive uploads to finish.
	Drain()
}

// Deps groups the collaborators of the service. Archive and Events are
// optional.
type Deps struct {
	OCR        ocr.Recognizer
	Resolver   ItemResolver
	Assistant  Assistant
	Enrichment enrichment.Service
	Patients   patient.Repository
	Charts     chart.Repository
	Archive    Archiver
	Events     ChartEvents
	Metrics    *prometheus.PipelineMetrics
}

type serviceImpl struct {
	deps        Deps
	logger      logging.Logger
	background  sync.WaitGroup
	concurrency int
}

// NewService wires the prescription workflow.
func NewService(deps Deps, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{
		deps:        deps,
		logger:      logger.Named("prescription"),
		concurrency: 4,
	}
}

func (s *serviceImpl) Process(ctx context.Context, f File) (*Result, error) {
	if len(f.Data) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "prescription document is empty").WithDetail(f.Name)
	}
	done := s.deps.Metrics.TrackWorkflow("prescription")
	defer done()
	defer logging.Timed(s.logger, "prescription.process", logging.String("file", f.Name))()

	s.archive(ctx, f)

	rec, err := s.deps.OCR.Recognize(ctx, f.Name, f.Data)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document recognised",
		logging.String("file", f.Name),
		logging.Int("text_runes", len([]rune(rec.Text))),
		logging.Int("pages", len(rec.Pages)))

	return s.ProcessText(ctx, rec.Text)
}

// archive uploads the document in the background. Failures are logged only.
func (s *serviceImpl) archive(ctx context.Context, f File) {
	if s.deps.Archive == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		actx, cancel := context.WithTimeout(bg, archiveTimeout)
		defer cancel()
		if _, err := s.deps.Archive.Upload(actx, f.Name, f.Data, f.ContentType); err != nil {
			s.logger.Error("document archive failed", logging.String("file", f.Name), logging.Err(err))
		}
	}()
}

func (s *serviceImpl) ProcessText(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("prescription text is empty")
	}

	stop := logging.Timed(s.logger, "prescription.resolve")
	itemNames := s.deps.Resolver.ResolveItemNames(ctx, text)
	stop()

	md, err := s.deps.Assistant.ExtractMetadata(ctx, text)
	if err != nil {
		return nil, err
	}
	p := md.ToPatient(itemNames)

	id, err := s.deps.Patients.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id
	s.logger.Info("patient stored",
		logging.Int64("patient_id", id),
		logging.Strings("medications", p.Medications))

	stop = logging.Timed(s.logger, "prescription.enrich", logging.Int("items", len(p.Medications)))
	drugs := s.deps.Enrichment.Filter(p.Medications, s.deps.Enrichment.EnrichBatch(ctx, p.Medications))
	stop()

	content, err := s.deps.Assistant.ComposeCareChart(ctx, p, drugs)
	if err != nil {
		return nil, err
	}

	patientID := p.ID
	c := &chart.Chart{Kind: chart.KindPrescription, PatientID: &patientID, Content: content}
	chartID, err := s.deps.Charts.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.RecordChartCreated(string(chart.KindPrescription))
	s.logger.Info("care chart stored", logging.Int64("chart_id", chartID), logging.Int64("patient_id", patientID))

	s.publish(ctx, chartID, &patientID)

	return &Result{ChartID: chartID, Result: content, Patient: p, Drugs: drugs}, nil
}

func (s *serviceImpl) publish(ctx context.Context, chartID int64, patientID *int64) {
	if s.deps.Events == nil {
		return
	}
	err := s.deps.Events.ChartCreated(ctx, kafka.ChartCreatedPayload{
		ChartID:   chartID,
		Kind:      string(chart.KindPrescription),
		PatientID: patientID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("chart event not published", logging.Int64("chart_id", chartID), logging.Err(err))
	}
}

func (s *serviceImpl) ProcessFiles(ctx context.Context, files []File) []common.Result[*Result] {
	return common.Run(ctx, files, s.Process,
		common.WithStage("prescription"),
		common.WithConcurrency(s.concurrency),
		common.WithUnitTimeout(10*time.Minute),
		common.WithLogger(s.logger),
		common.WithMetrics(s.deps.Metrics))
}

func (s *serviceImpl) Drain() { s.background.Wait() }
