package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/livecare/internal/config"
	"github.com/turtacn/livecare/internal/domain/chart"
	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/domain/patient"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/pkg/errors"
)

func defaultConfig(string) (*config.Config, error) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg, nil
}

type runResult struct {
	stdout string
	stderr string
	code   int
}

func runCLI(t *testing.T, b *fakeBackend, args ...string) runResult {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Run(context.Background(), args, &out, &errOut,
		WithConfigLoader(defaultConfig),
		WithLogger(logging.NewNopLogger()),
		WithBackendFactory(func(*config.Config, logging.Logger) (Backend, error) { return b, nil }),
	)
	return runResult{stdout: out.String(), stderr: errOut.String(), code: code}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "livecare", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"migrate", "prescription", "encounter", "chart", "drug", "dur", "patient", "metrics", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}

	pf := cmd.PersistentFlags()
	require.NotNil(t, pf.Lookup("config"))
	assert.Equal(t, "c", pf.Lookup("config").Shorthand)
	assert.Equal(t, "text", pf.Lookup("output").DefValue)
	assert.Equal(t, DefaultTimeout.String(), pf.Lookup("timeout").DefValue)
	assert.NotNil(t, pf.Lookup("log-level"))
}

func TestVersion_NeedsNoBackend(t *testing.T) {
	var out bytes.Buffer
	code := Run(context.Background(), []string{"version"}, &out, &out,
		WithConfigLoader(func(string) (*config.Config, error) {
			return nil, errors.New(errors.ErrCodeInternal, "config must not be loaded")
		}),
	)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "livecare dev")

	out.Reset()
	code = Run(context.Background(), []string{"version", "-o", "json"}, &out, &out)
	require.Equal(t, 0, code)
	var info BuildInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "dev", info.Version)
}

func TestInvalidOutputFormat(t *testing.T) {
	res := runCLI(t, newFakeBackend(), "dur", "타이레놀", "--output", "yaml")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "invalid output format")
}

func TestBackendClosedAfterEveryCommand(t *testing.T) {
	b := newFakeBackend()
	res := runCLI(t, b, "patient", "show", "1")
	assert.Equal(t, 3, res.code)
	assert.Equal(t, 1, b.closed)
}

func TestPrescriptionProcess_SingleDocument(t *testing.T) {
	b := newFakeBackend()
	path := writeFile(t, "rx.pdf", "%PDF-1.4 prescription")

	res := runCLI(t, b, "prescription", "process", path)
	require.Equal(t, 0, res.code, res.stderr)
	require.Len(t, b.prescription.files, 1)
	assert.Equal(t, "rx.pdf", b.prescription.files[0].Name)
	assert.Equal(t, "application/pdf", b.prescription.files[0].ContentType)

	assert.Contains(t, res.stdout, "chart #101")
	assert.Contains(t, res.stdout, "patient #7: 홍길동, age 45")
	assert.Contains(t, res.stdout, "1정: 아세트아미노펜 500 밀리그램")
	assert.Contains(t, res.stdout, "간 기능 모니터링")
}

func TestPrescriptionProcess_JSON(t *testing.T) {
	b := newFakeBackend()
	path := writeFile(t, "rx.pdf", "%PDF-1.4")

	res := runCLI(t, b, "-o", "json", "prescription", "process", path)
	require.Equal(t, 0, res.code, res.stderr)

	var report ProcessReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	require.Len(t, report.Files, 1)
	assert.Equal(t, int64(101), report.Files[0].Result.ChartID)
	assert.Equal(t, "타이레놀정500밀리그람", report.Files[0].Result.Drugs[0].ItemName)
	assert.Contains(t, res.stdout, `"요약_보고서": "간독성 주의"`)
}

func TestPrescriptionProcess_SingleFailureIsReturned(t *testing.T) {
	b := newFakeBackend()
	b.prescription.failOn = "rx.pdf"
	res := runCLI(t, b, "prescription", "process", writeFile(t, "rx.pdf", "x"))
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, string(errors.ErrCodeOCRFailed))
}

func TestPrescriptionProcess_BatchKeepsOrder(t *testing.T) {
	b := newFakeBackend()
	b.prescription.failOn = "b.png"
	a := writeFile(t, "a.png", "\x89PNG")
	bad := writeFile(t, "b.png", "\x89PNG")
	c := writeFile(t, "c.png", "\x89PNG")

	res := runCLI(t, b, "-o", "json", "prescription", "process", a, bad, c)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "1 of 3 documents failed")

	var report ProcessReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	require.Len(t, report.Files, 3)
	assert.Equal(t, "a.png", report.Files[0].File)
	assert.NotNil(t, report.Files[0].Result)
	assert.Nil(t, report.Files[1].Result)
	assert.Contains(t, report.Files[1].Error, "HTTP 500")
	assert.NotNil(t, report.Files[2].Result)
}

func TestPrescriptionProcess_FromText(t *testing.T) {
	b := newFakeBackend()
	ok := writeFile(t, "ok.txt", "처방: 타이레놀500정")
	broken := writeFile(t, "broken.txt", "broken")

	res := runCLI(t, b, "prescription", "process", "--from-text", ok, broken)
	assert.Equal(t, 4, res.code)
	assert.Equal(t, []string{"처방: 타이레놀500정", "broken"}, b.prescription.texts)
	assert.Empty(t, b.prescription.files)
	assert.Contains(t, res.stdout, "== ok.txt ==")
	assert.Contains(t, res.stdout, "failed: ")
}

func TestEncounterTranscribe(t *testing.T) {
	b := newFakeBackend()
	path := writeFile(t, "visit.wav", "RIFF....WAVE")

	res := runCLI(t, b, "encounter", "transcribe", path)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "voice chart #9")
	assert.Contains(t, res.stdout, "recording: visit.wav")
	assert.NotContains(t, res.stdout, "seen before")

	res = runCLI(t, b, "encounter", "transcribe", path)
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "seen before")
}

func TestChartShow(t *testing.T) {
	b := newFakeBackend()
	pid := int64(7)
	b.encounter.charts[3] = &chart.Chart{ID: 3, Kind: chart.KindPrescription, PatientID: &pid, Content: "케어 차트", UpdatedAt: time.Now()}

	res := runCLI(t, b, "chart", "show", "prescription", "3")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "prescription chart #3 for patient #7")
	assert.Contains(t, res.stdout, "케어 차트")

	assert.Equal(t, 3, runCLI(t, b, "chart", "show", "voice", "3").code)
	assert.Equal(t, 2, runCLI(t, b, "chart", "show", "audio", "3").code)
	assert.Equal(t, 2, runCLI(t, b, "chart", "show", "voice", "abc").code)
}

func TestChartUpdate(t *testing.T) {
	b := newFakeBackend()
	b.encounter.charts[3] = &chart.Chart{ID: 3, Kind: chart.KindVoice}

	res := runCLI(t, b, "chart", "update", "voice", "3", "--content", "S: 복통")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "OK: voice chart #3 updated")

	file := writeFile(t, "chart.md", "S: 발열")
	require.Equal(t, 0, runCLI(t, b, "chart", "update", "voice", "3", "--file", file).code)
	assert.Equal(t, []string{"S: 복통", "S: 발열"}, b.encounter.updates)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no content", []string{"chart", "update", "voice", "3"}, 2},
		{"both sources", []string{"chart", "update", "voice", "3", "--content", "x", "--file", file}, 2},
		{"payload mismatch", []string{"chart", "update", "voice", "3", "--content", "x", "--payload-id", "4"}, 2},
		{"missing chart", []string{"chart", "update", "voice", "8", "--content", "x"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, runCLI(t, b, tt.args...).code)
		})
	}
	assert.Len(t, b.encounter.updates, 2)
}

func tylenolRecord() *drug.Drug {
	return &drug.Drug{
		ID:           1,
		ItemName:     "타이레놀정500밀리그람",
		Manufacturer: "한국얀센",
		Ingredients:  drug.Ingredients{"1정": {Name: "아세트아미노펜", Amount: "500 밀리그램"}},
		Summary:      "간독성 주의",
	}
}

func TestDrugShow(t *testing.T) {
	b := newFakeBackend()
	b.enrichment.records["타이레놀정500밀리그람"] = tylenolRecord()

	res := runCLI(t, b, "drug", "show", "타이레놀정500밀리그람")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "#1 타이레놀정500밀리그람")
	assert.Contains(t, res.stdout, "업체명: 한국얀센")
	assert.Contains(t, res.stdout, "[요약 보고서]\n간독성 주의")

	res = runCLI(t, b, "-o", "json", "drug", "show", "1")
	require.Equal(t, 0, res.code, res.stderr)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	assert.Equal(t, "타이레놀정500밀리그람", doc["품목명"])

	assert.Equal(t, 3, runCLI(t, b, "drug", "show", "없는약").code)
}

func TestDrugUpdate(t *testing.T) {
	b := newFakeBackend()
	file := writeFile(t, "record.json", `{"품목명": "타이레놀정500밀리그람", "요약_보고서": "새 요약", "주성분": {}}`)

	res := runCLI(t, b, "drug", "update", "1", "--file", file)
	require.Equal(t, 0, res.code, res.stderr)
	require.NotNil(t, b.enrichment.updated)
	assert.Equal(t, int64(1), b.enrichment.updated.ID)
	assert.Equal(t, "새 요약", b.enrichment.updated.Summary)

	bad := writeFile(t, "bad.json", `{"name": "x"}`)
	assert.Equal(t, 2, runCLI(t, b, "drug", "update", "1", "--file", bad).code)
	assert.Equal(t, 2, runCLI(t, b, "drug", "update", "1").code)
	assert.Equal(t, 2, runCLI(t, b, "drug", "update", "0", "--file", file).code)
}

func TestDrugEnrich_ReportsMissing(t *testing.T) {
	b := newFakeBackend()
	b.enrichment.records["타이레놀정500밀리그람"] = tylenolRecord()

	res := runCLI(t, b, "-o", "json", "drug", "enrich", "타이레놀정500밀리그람", "없는약")
	require.Equal(t, 0, res.code, res.stderr)
	var report EnrichReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	require.Len(t, report.Drugs, 1)
	assert.Equal(t, "간독성 주의", report.Drugs[0].Summary)
	assert.Equal(t, []string{"없는약"}, report.Missing)

	res = runCLI(t, b, "drug", "enrich", "없는약")
	assert.Contains(t, res.stdout, "no record produced: 없는약")
}

func TestDrugCandidates(t *testing.T) {
	b := newFakeBackend()
	res := runCLI(t, b, "drug", "candidates", "처방:", "타이레놀500정")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "처방: 타이레놀500정", b.resolver.text)
	assert.Contains(t, res.stdout, "item names: 타이레놀정500밀리그람")

	file := writeFile(t, "ocr.txt", "아세트아미노펜500")
	require.Equal(t, 0, runCLI(t, b, "drug", "candidates", "--file", file).code)
	assert.Equal(t, "아세트아미노펜500", b.resolver.text)

	assert.Equal(t, 2, runCLI(t, b, "drug", "candidates").code)
	assert.Equal(t, 2, runCLI(t, b, "drug", "candidates", "x", "--file", file).code)
}

func TestDUR(t *testing.T) {
	res := runCLI(t, newFakeBackend(), "dur", "타이레놀정500밀리그람")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "DUR report for 타이레놀정500밀리그람")
	assert.Contains(t, res.stdout, "[병용금기] getUsjntTabooInfoList03\n  - 와파린")
	assert.Contains(t, res.stdout, "[임부금기] getPwnmTabooInfoList03\n  -\n")
}

func TestPatientShow(t *testing.T) {
	b := newFakeBackend()
	b.patients.records[1] = &patient.Patient{ID: 1, Name: "김영희", Gender: "여", Medications: []string{"게보린정"}}

	res := runCLI(t, b, "patient", "show", "1")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "patient #1: 김영희, age ?, 여; medications: 게보린정")

	assert.Equal(t, 2, runCLI(t, b, "patient", "show", "0").code)
}

func TestMigrate(t *testing.T) {
	b := newFakeBackend()

	res := runCLI(t, b, "migrate", "up")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "schema version 1 (clean)\n", res.stdout)
	assert.True(t, b.migrator.closed)

	res = runCLI(t, b, "migrate", "down")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "schema version 0")

	assert.Equal(t, 4, runCLI(t, b, "migrate", "down", "3").code)
	assert.Equal(t, 2, runCLI(t, b, "migrate", "down", "zero").code)

	res = runCLI(t, b, "-o", "json", "migrate", "status")
	require.Equal(t, 0, res.code)
	assert.JSONEq(t, `{"version":0,"dirty":false}`, res.stdout)
}

func TestMetricsDump(t *testing.T) {
	b := newFakeBackend()
	b.collector.RegisterCounter("charts_created_total", "Charts persisted.", "kind").WithLabelValues("voice").Inc()

	res := runCLI(t, b, "metrics", "dump")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "# TYPE livecare_charts_created_total counter")
	assert.Contains(t, res.stdout, `livecare_charts_created_total{kind="voice"} 1`)
}

func TestFormatTable_WideRunes(t *testing.T) {
	out := FormatTable([]string{"품목명", "n"}, [][]string{{"게보린정", "1"}, {"ab", "22"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "품목명    n", lines[0])
	assert.Equal(t, "--------  --", lines[1])
	assert.Equal(t, "게보린정  1", lines[2])
	assert.Equal(t, "ab        22", lines[3])
	assert.Empty(t, FormatTable(nil, nil))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 5, exitCode(context.DeadlineExceeded))
	assert.Equal(t, 2, exitCode(errors.New(errors.ErrCodeValidation, "bad")))
	assert.Equal(t, 1, exitCode(assert.AnError))
}
