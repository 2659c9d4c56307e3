package safety

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/opendata"
	"github.com/turtacn/livecare/pkg/errors"
)

type fakeDUR struct {
	mu    sync.Mutex
	calls []string
	rows  map[string][]opendata.Item
	fail  map[string]bool
}

func (f *fakeDUR) Fetch(_ context.Context, operation, itemName string) ([]opendata.Item, error) {
	f.mu.Lock()
	f.calls = append(f.calls, operation+"|"+itemName)
	f.mu.Unlock()
	if f.fail[operation] {
		return nil, errors.New(errors.ErrCodeExternalService, "HTTP 500")
	}
	return f.rows[operation], nil
}

func TestReport_AllEndpointsInOrder(t *testing.T) {
	dur := &fakeDUR{
		rows: map[string][]opendata.Item{
			"getUsjntTabooInfoList03": {{"ITEM_NAME": "타이레놀정500밀리그람", "MIXTURE_ITEM_NAME": "와파린"}},
			"getOdsnAtentInfoList03":  {},
		},
		fail: map[string]bool{"getPwnmTabooInfoList03": true},
	}
	svc := NewService(dur, logging.NewNopLogger(), nil)

	rep, err := svc.Report(context.Background(), " 타이레놀정500밀리그람 ")
	require.NoError(t, err)
	assert.Equal(t, "타이레놀정500밀리그람", rep.ItemName)
	require.Len(t, rep.Sections, len(opendata.DUREndpoints))
	assert.Len(t, dur.calls, len(opendata.DUREndpoints))

	for i, ep := range opendata.DUREndpoints {
		assert.Equal(t, ep.Operation, rep.Sections[i].Operation)
		assert.Equal(t, ep.Description, rep.Sections[i].Description)
	}
	assert.Len(t, rep.Sections[0].Items, 1)
	assert.Nil(t, rep.Sections[1].Items)

	byOp := rep.ByOperation()
	assert.Len(t, byOp, 9)
	assert.Nil(t, byOp["getPwnmTabooInfoList03"])
	assert.Equal(t, "와파린", byOp["getUsjntTabooInfoList03"][0].String("MIXTURE_ITEM_NAME"))
}

func TestReport_RequiresName(t *testing.T) {
	svc := NewService(&fakeDUR{}, nil, nil)
	_, err := svc.Report(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestReport_AgainstRegistryServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/DURPrdlstInfoService03/"))
		assert.Equal(t, "게보린정", r.URL.Query().Get("itemName"))
		assert.Equal(t, "10", r.URL.Query().Get("numOfRows"))
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "getPwnmTabooInfoList03") {
			_, _ = w.Write([]byte(`{"body":{"items":{"item":{"ITEM_NAME":"게보린정","PROHBT_CONTENT":"임부 금기"}}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"body":{"items":[]}}`))
	}))
	t.Cleanup(server.Close)

	client, err := opendata.NewClient(opendata.Config{
		BaseURL: server.URL, ServiceKey: "k", Timeout: 2 * time.Second, RateLimit: 1000, Burst: 100,
	}, nil)
	require.NoError(t, err)

	rep, err := NewService(client.DUR(), nil, nil).Report(context.Background(), "게보린정")
	require.NoError(t, err)
	byOp := rep.ByOperation()
	require.Len(t, byOp["getPwnmTabooInfoList03"], 1)
	assert.Equal(t, "임부 금기", byOp["getPwnmTabooInfoList03"][0].String("PROHBT_CONTENT"))
	assert.Nil(t, byOp["getUsjntTabooInfoList03"])
}
