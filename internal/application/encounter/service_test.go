package encounter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/livecare/internal/domain/chart"
	"github.com/turtacn/livecare/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/livecare/internal/infrastructure/speech"
	"github.com/turtacn/livecare/pkg/errors"
)

type MockChartRepository struct {
	mock.Mock
}

func (m *MockChartRepository) Create(ctx context.Context, c *chart.Chart) (int64, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChartRepository) FindByID(ctx context.Context, kind chart.Kind, id int64) (*chart.Chart, error) {
	args := m.Called(ctx, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chart.Chart), args.Error(1)
}

func (m *MockChartRepository) FindByFileHash(ctx context.Context, hash string) (*chart.Chart, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chart.Chart), args.Error(1)
}

func (m *MockChartRepository) UpdateContent(ctx context.Context, kind chart.Kind, id int64, content string) (bool, error) {
	args := m.Called(ctx, kind, id, content)
	return args.Bool(0), args.Error(1)
}

type fakeTranscriber struct {
	calls int
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, _ []byte) (*speech.Transcript, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &speech.Transcript{Result: "COMPLETED", Text: "어제부터 두통이 있어요"}, nil
}

type fakeComposer struct{ transcript string }

func (f *fakeComposer) ComposeEncounterChart(_ context.Context, transcript string) (string, error) {
	f.transcript = transcript
	return "S: 두통", nil
}

type fakeEvents struct{ payloads []kafka.ChartCreatedPayload }

func (f *fakeEvents) ChartCreated(_ context.Context, p kafka.ChartCreatedPayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

var audio = []byte("RIFF....WAVEfmt ")

func notFound() error { return errors.New(errors.ErrCodeChartNotFound, "chart not found") }

func TestFileHash(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", FileHash(nil))
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", FileHash([]byte("abc")))
}

func TestTranscribe_NewRecording(t *testing.T) {
	repo := new(MockChartRepository)
	hash := FileHash(audio)
	repo.On("FindByFileHash", mock.Anything, hash).Return(nil, notFound())
	repo.On("Create", mock.Anything, mock.MatchedBy(func(c *chart.Chart) bool {
		return c.Kind == chart.KindVoice && c.PatientID == nil && c.Content == "S: 두통" &&
			c.File.Name == "visit.wav" && c.File.Size == int64(len(audio)) && c.File.Type == "audio/wav" && c.File.Hash == hash
	})).Return(int64(5), nil)

	tr := &fakeTranscriber{}
	composer := &fakeComposer{}
	events := &fakeEvents{}
	svc := NewService(repo, tr, composer, nil, WithEvents(events))

	res, err := svc.Transcribe(context.Background(), File{Name: "visit.wav", ContentType: "audio/wav", Data: audio})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(5), res.Chart.ID)
	assert.Equal(t, "어제부터 두통이 있어요", composer.transcript)
	require.Len(t, events.payloads, 1)
	assert.Equal(t, "voice", events.payloads[0].Kind)
	assert.Nil(t, events.payloads[0].PatientID)
	repo.AssertExpectations(t)
}

func TestTranscribe_DuplicateReturnsStoredChart(t *testing.T) {
	repo := new(MockChartRepository)
	stored := &chart.Chart{ID: 3, Kind: chart.KindVoice, Content: "이전 차트"}
	repo.On("FindByFileHash", mock.Anything, FileHash(audio)).Return(stored, nil)

	tr := &fakeTranscriber{}
	svc := NewService(repo, tr, &fakeComposer{}, nil)

	res, err := svc.Transcribe(context.Background(), File{Name: "again.wav", Data: audio})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, stored, res.Chart)
	assert.Zero(t, tr.calls)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTranscribe_Failures(t *testing.T) {
	svc := NewService(new(MockChartRepository), &fakeTranscriber{}, &fakeComposer{}, nil)
	_, err := svc.Transcribe(context.Background(), File{Name: "empty.wav"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	repo := new(MockChartRepository)
	repo.On("FindByFileHash", mock.Anything, mock.Anything).Return(nil, errors.New(errors.ErrCodeDatabaseError, "down"))
	svc = NewService(repo, &fakeTranscriber{}, &fakeComposer{}, nil)
	_, err = svc.Transcribe(context.Background(), File{Name: "a.wav", Data: audio})
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))

	repo = new(MockChartRepository)
	repo.On("FindByFileHash", mock.Anything, mock.Anything).Return(nil, notFound())
	tr := &fakeTranscriber{err: errors.New(errors.ErrCodeTranscriptionFailed, "403")}
	svc = NewService(repo, tr, &fakeComposer{}, nil)
	_, err = svc.Transcribe(context.Background(), File{Name: "a.wav", Data: audio})
	assert.True(t, errors.IsCode(err, errors.ErrCodeTranscriptionFailed))
}

func TestUpdateChart(t *testing.T) {
	tests := []struct {
		name      string
		id        int64
		payloadID int64
		setup     func(m *MockChartRepository)
		code      errors.ErrorCode
	}{
		{
			name: "updated", id: 7, payloadID: 7,
			setup: func(m *MockChartRepository) {
				m.On("FindByID", mock.Anything, chart.KindPrescription, int64(7)).Return(&chart.Chart{ID: 7}, nil)
				m.On("UpdateContent", mock.Anything, chart.KindPrescription, int64(7), "new").Return(true, nil)
			},
		},
		{
			name: "missing", id: 7, payloadID: 7,
			setup: func(m *MockChartRepository) {
				m.On("FindByID", mock.Anything, chart.KindPrescription, int64(7)).Return(nil, notFound())
			},
			code: errors.ErrCodeChartNotFound,
		},
		{
			name: "id mismatch", id: 7, payloadID: 8,
			setup: func(m *MockChartRepository) {
				m.On("FindByID", mock.Anything, chart.KindPrescription, int64(7)).Return(&chart.Chart{ID: 7}, nil)
			},
			code: errors.ErrCodeValidation,
		},
		{
			name: "no row changed", id: 7, payloadID: 7,
			setup: func(m *MockChartRepository) {
				m.On("FindByID", mock.Anything, chart.KindPrescription, int64(7)).Return(&chart.Chart{ID: 7}, nil)
				m.On("UpdateContent", mock.Anything, chart.KindPrescription, int64(7), "new").Return(false, nil)
			},
			code: errors.ErrCodeDatabaseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockChartRepository)
			tt.setup(repo)
			svc := NewService(repo, &fakeTranscriber{}, &fakeComposer{}, nil)

			err := svc.UpdateChart(context.Background(), chart.KindPrescription, tt.id, tt.payloadID, "new")
			if tt.code == "" {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestUpdateChart_MismatchCarriesSpecificCode(t *testing.T) {
	repo := new(MockChartRepository)
	repo.On("FindByID", mock.Anything, chart.KindVoice, int64(1)).Return(&chart.Chart{ID: 1}, nil)
	svc := NewService(repo, &fakeTranscriber{}, &fakeComposer{}, nil)

	err := svc.UpdateChart(context.Background(), chart.KindVoice, 1, 2, "x")
	assert.True(t, errors.IsCode(err, errors.ErrCodeChartIDMismatch))
	repo.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
