package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/opendata"
	"github.com/turtacn/livecare/internal/intelligence/drug_extractor"
)

// registryStub answers the pill identification and permit detail services.
type registryStub struct {
	mu          sync.Mutex
	grainTerms  []string
	detailCalls int32
}

func (s *registryStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		name := r.URL.Query().Get("item_name")
		switch {
		case strings.Contains(r.URL.Path, "MdcinGrnIdntfcInfoService01"):
			s.mu.Lock()
			s.grainTerms = append(s.grainTerms, name)
			s.mu.Unlock()
			if name == "타이레놀" {
				_, _ = w.Write([]byte(`{"header":{"resultCode":"00"},"body":{"items":[{"ITEM_NAME":"타이레놀정500밀리그람","ITEM_SEQ":"198500002"}]}}`))
				return
			}
			_, _ = w.Write([]byte(`{"header":{"resultCode":"00"},"body":{"totalCount":0,"items":""}}`))
		case strings.Contains(r.URL.Path, "DrugPrdtPrmsnInfoService06"):
			atomic.AddInt32(&s.detailCalls, 1)
			assert.Equal(t, "타이레놀정500밀리그람", name)
			_, _ = w.Write([]byte(`{"body":{"items":[{
				"ITEM_NAME":"타이레놀정500밀리그람",
				"ITEM_SEQ":"198500002",
				"ENTP_NAME":"한국존슨앤드존슨판매(유)",
				"MATERIAL_NAME":"총량 : 1정 중 500밀리그램|성분명 : 아세트아미노펜|분량 : 500|단위 : 밀리그램|규격 : KP|",
				"NB_DOC_DATA":"&lt;DOC&gt;&lt;ARTICLE title=\"이상반응\"&gt;&lt;![CDATA[간손상]]&gt;&lt;/ARTICLE&gt;&lt;/DOC&gt;"
			}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestPipeline_TylenolPrescriptionEndToEnd(t *testing.T) {
	stub := &registryStub{}
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	client, err := opendata.NewClient(opendata.Config{
		BaseURL:    server.URL,
		ServiceKey: "test-key",
		Timeout:    2 * time.Second,
		RateLimit:  1000,
		Burst:      100,
	}, logging.NewNopLogger())
	require.NoError(t, err)

	resolver := drug_extractor.NewResolver(client.Grain(), logging.NewNopLogger())
	sum := &fakeSummarizer{}
	svc := NewService(newMemRepo(), client.Detail(), sum, logging.NewNopLogger())

	const text = "처방: 타이레놀500정 1일 3회"
	run := func() []*drug.Projection {
		names := resolver.ResolveItemNames(context.Background(), text)
		require.Equal(t, []string{"타이레놀정500밀리그람"}, names)
		return svc.Filter(names, svc.EnrichBatch(context.Background(), names))
	}

	first := run()
	require.Len(t, first, 1)
	assert.Equal(t, "타이레놀정500밀리그람", first[0].ItemName)
	assert.Equal(t, drug.Ingredients{"1정": {Name: "아세트아미노펜", Amount: "500 밀리그램"}}, first[0].Ingredients)
	assert.Equal(t, "요약: 간독성 주의", first[0].Summary)
	assert.Equal(t, `<ARTICLE title="이상반응">`+"\n간손상", sum.lastDoc)
	assert.Equal(t, []string{"타이레놀500", "타이레놀"}, stub.grainTerms)

	second := run()
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sum.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.detailCalls))
}
