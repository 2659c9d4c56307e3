package cli

import (
	"context"
	"strings"

	"github.com/turtacn/livecare/internal/application/encounter"
	"github.com/turtacn/livecare/internal/application/enrichment"
	"github.com/turtacn/livecare/internal/application/prescription"
	"github.com/turtacn/livecare/internal/application/safety"
	"github.com/turtacn/livecare/internal/domain/chart"
	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/domain/patient"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/internal/infrastructure/opendata"
	"github.com/turtacn/livecare/internal/intelligence/common"
	"github.com/turtacn/livecare/internal/intelligence/drug_extractor"
	"github.com/turtacn/livecare/pkg/errors"
)

type fakeBackend struct {
	prescription *fakePrescription
	encounter    *fakeEncounter
	enrichment   *fakeEnrichment
	resolver     *fakeResolver
	safety       *fakeSafety
	patients     *fakePatients
	migrator     *fakeMigrator
	collector    prometheus.MetricsCollector
	closed       int
}

func newFakeBackend() *fakeBackend {
	collector, _ := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "livecare"}, nil)
	return &fakeBackend{
		prescription: &fakePrescription{},
		encounter:    &fakeEncounter{charts: map[int64]*chart.Chart{}},
		enrichment:   &fakeEnrichment{records: map[string]*drug.Drug{}},
		resolver:     &fakeResolver{},
		safety:       &fakeSafety{},
		patients:     &fakePatients{records: map[int64]*patient.Patient{}},
		migrator:     &fakeMigrator{},
		collector:    collector,
	}
}

func (b *fakeBackend) Prescription() (prescription.Service, error) { return b.prescription, nil }
func (b *fakeBackend) Encounter() (encounter.Service, error)       { return b.encounter, nil }
func (b *fakeBackend) Enrichment() (enrichment.Service, error)     { return b.enrichment, nil }
func (b *fakeBackend) Resolver() (CandidateResolver, error)        { return b.resolver, nil }
func (b *fakeBackend) Safety() (SafetyReporter, error)             { return b.safety, nil }
func (b *fakeBackend) Patients() (patient.Repository, error)       { return b.patients, nil }
func (b *fakeBackend) Migrator() (SchemaMigrator, error)           { return b.migrator, nil }
func (b *fakeBackend) Metrics() prometheus.MetricsCollector        { return b.collector }

func (b *fakeBackend) Close() error {
	b.closed++
	return nil
}

type fakePrescription struct {
	texts   []string
	files   []prescription.File
	failOn  string
	drained bool
}

func (f *fakePrescription) result(id int64) *prescription.Result {
	age := 45
	return &prescription.Result{
		ChartID: id,
		Result:  "## 다학제 케어 차트\n간 기능 모니터링",
		Patient: &patient.Patient{ID: 7, Name: "홍길동", Age: &age, Gender: "남", Medications: []string{"타이레놀정500밀리그람"}},
		Drugs: []*drug.Projection{{
			ItemName:    "타이레놀정500밀리그람",
			Ingredients: drug.Ingredients{"1정": {Name: "아세트아미노펜", Amount: "500 밀리그램"}},
			Summary:     "간독성 주의",
		}},
	}
}

func (f *fakePrescription) Process(_ context.Context, file prescription.File) (*prescription.Result, error) {
	f.files = append(f.files, file)
	if file.Name == f.failOn {
		return nil, errors.New(errors.ErrCodeOCRFailed, "ocr: HTTP 500")
	}
	return f.result(101), nil
}

func (f *fakePrescription) ProcessText(_ context.Context, text string) (*prescription.Result, error) {
	f.texts = append(f.texts, text)
	if strings.Contains(text, "broken") {
		return nil, errors.New(errors.ErrCodeDatabaseError, "insert patient")
	}
	return f.result(int64(100 + len(f.texts))), nil
}

func (f *fakePrescription) ProcessFiles(ctx context.Context, files []prescription.File) []common.Result[*prescription.Result] {
	out := make([]common.Result[*prescription.Result], len(files))
	for i, file := range files {
		res, err := f.Process(ctx, file)
		out[i] = common.Result[*prescription.Result]{Index: i, Value: res, Err: err, Status: common.UnitSucceeded}
		if err != nil {
			out[i].Status = common.UnitFailed
		}
	}
	return out
}

func (f *fakePrescription) Drain() { f.drained = true }

type fakeEncounter struct {
	charts  map[int64]*chart.Chart
	updates []string
	seen    map[string]bool
}

func (f *fakeEncounter) Transcribe(_ context.Context, file encounter.File) (*encounter.Result, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	hash := encounter.FileHash(file.Data)
	c := &chart.Chart{ID: 9, Kind: chart.KindVoice, Content: "S: 두통",
		File: &chart.FileMetadata{Name: file.Name, Size: int64(len(file.Data)), Type: file.ContentType, Hash: hash}}
	dup := f.seen[hash]
	f.seen[hash] = true
	return &encounter.Result{Chart: c, Duplicate: dup}, nil
}

func (f *fakeEncounter) GetChart(_ context.Context, kind chart.Kind, id int64) (*chart.Chart, error) {
	c, ok := f.charts[id]
	if !ok || c.Kind != kind {
		return nil, errors.New(errors.ErrCodeChartNotFound, "chart not found")
	}
	return c, nil
}

func (f *fakeEncounter) UpdateChart(ctx context.Context, kind chart.Kind, id, payloadID int64, content string) error {
	if _, err := f.GetChart(ctx, kind, id); err != nil {
		return err
	}
	if id != payloadID {
		return errors.Wrap(errors.New(errors.ErrCodeChartIDMismatch, "mismatch"), errors.ErrCodeValidation, "invalid chart update")
	}
	f.updates = append(f.updates, content)
	return nil
}

type fakeEnrichment struct {
	records map[string]*drug.Drug
	updated *drug.Drug
}

func (f *fakeEnrichment) Enrich(_ context.Context, name string) (*drug.Projection, error) {
	if d, ok := f.records[name]; ok {
		return d.Projection(), nil
	}
	return nil, nil
}

func (f *fakeEnrichment) EnrichBatch(ctx context.Context, names []string) []common.Result[*drug.Projection] {
	out := make([]common.Result[*drug.Projection], len(names))
	for i, n := range names {
		p, _ := f.Enrich(ctx, n)
		out[i] = common.Result[*drug.Projection]{Index: i, Value: p, Status: common.UnitSucceeded}
	}
	return out
}

func (f *fakeEnrichment) Filter(_ []string, results []common.Result[*drug.Projection]) []*drug.Projection {
	var out []*drug.Projection
	for _, r := range results {
		if r.OK() && r.Value != nil {
			out = append(out, r.Value)
		}
	}
	return out
}

func (f *fakeEnrichment) FindDrug(_ context.Context, ref string) (*drug.Drug, error) {
	for _, d := range f.records {
		if d.ItemName == ref || ref == "1" && d.ID == 1 {
			return d, nil
		}
	}
	return nil, errors.New(errors.ErrCodeDrugNotFound, "drug not found")
}

func (f *fakeEnrichment) UpdateDrug(_ context.Context, id int64, d *drug.Drug) (*drug.Drug, error) {
	d.ID = id
	f.updated = d
	return d, nil
}

type fakeResolver struct{ text string }

func (f *fakeResolver) Resolve(_ context.Context, text string) *drug_extractor.Resolution {
	f.text = text
	return &drug_extractor.Resolution{
		Candidates: []string{"타이레놀500"},
		Terms:      []string{"타이레놀500"},
		Matches:    []drug_extractor.Match{{Term: "타이레놀500", Resolved: "타이레놀", ItemName: "타이레놀정500밀리그람"}},
		ItemNames:  []string{"타이레놀정500밀리그람"},
	}
}

type fakeSafety struct{}

func (fakeSafety) Report(_ context.Context, name string) (*safety.Report, error) {
	return &safety.Report{ItemName: name, Sections: []safety.Section{
		{Operation: "getUsjntTabooInfoList03", Description: "병용금기", Items: []opendata.Item{{"ITEM_NAME": name, "MIXTURE_ITEM_NAME": "와파린"}}},
		{Operation: "getPwnmTabooInfoList03", Description: "임부금기"},
	}}, nil
}

type fakePatients struct{ records map[int64]*patient.Patient }

func (f *fakePatients) Create(_ context.Context, p *patient.Patient) (int64, error) {
	id := int64(len(f.records) + 1)
	f.records[id] = p
	return id, nil
}

func (f *fakePatients) FindByID(_ context.Context, id int64) (*patient.Patient, error) {
	if p, ok := f.records[id]; ok {
		return p, nil
	}
	return nil, errors.New(errors.ErrCodePatientNotFound, "patient not found")
}

type fakeMigrator struct {
	version uint
	closed  bool
}

func (m *fakeMigrator) Up() error {
	m.version = 1
	return nil
}

func (m *fakeMigrator) Down(steps int) error {
	if uint(steps) > m.version {
		return errors.New(errors.ErrCodeDatabaseError, "no migration to roll back")
	}
	m.version -= uint(steps)
	return nil
}

func (m *fakeMigrator) Status() (uint, bool, error) { return m.version, false, nil }

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}
