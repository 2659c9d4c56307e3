package opendata

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedTerms struct {
	mu    sync.Mutex
	terms []string
}

func (r *recordedTerms) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terms = append(r.terms, s)
}

func (r *recordedTerms) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.terms...)
}

func TestGrainLookup_PrefixFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+grainPath, r.URL.Path)
		assert.Equal(t, "30", r.URL.Query().Get("numOfRows"))
		writeJSON(w, `{"body":{"items":[
			{"ITEM_NAME":"어린이타이레놀정80밀리그램"},
			{"ITEM_NAME":"타이레놀정500밀리그램"},
			{"ITEM_NAME":"타이레놀이알서방정"}]}}`)
	})

	term, items := c.Grain().Lookup(context.Background(), "타이레놀")
	assert.Equal(t, "타이레놀", term)
	require.Len(t, items, 2)
	assert.Equal(t, "타이레놀정500밀리그램", items[0].ItemName())
	assert.Equal(t, "타이레놀이알서방정", items[1].ItemName())
}

func TestGrainLookup_NoPrefixMatchKeepsFullList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"body":{"items":[{"ITEM_NAME":"가"},{"ITEM_NAME":"나"}]}}`)
	})
	_, items := c.Grain().Lookup(context.Background(), "다")
	assert.Len(t, items, 2)
}

func TestGrainLookup_SingleItemIsNotFiltered(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"body":{"items":[{"ITEM_NAME":"게보린정"}]}}`)
	})
	_, items := c.Grain().Lookup(context.Background(), "보린")
	require.Len(t, items, 1)
	assert.Equal(t, "게보린정", items[0].ItemName())
}

func TestGrainLookup_NumericSuffixRetry(t *testing.T) {
	rec := &recordedTerms{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		term := r.URL.Query().Get("item_name")
		rec.add(term)
		if term == "아세트아미노펜" {
			writeJSON(w, `{"body":{"items":[{"ITEM_NAME":"아세트아미노펜정"}]}}`)
			return
		}
		writeJSON(w, `{"body":{"totalCount":0}}`)
	})

	term, items := c.Grain().Lookup(context.Background(), "아세트아미노펜500")
	assert.Equal(t, "아세트아미노펜", term)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"아세트아미노펜500", "아세트아미노펜"}, rec.all())
}

func TestGrainLookup_FullwidthSuffixRetry(t *testing.T) {
	rec := &recordedTerms{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		term := r.URL.Query().Get("item_name")
		rec.add(term)
		if term == "타이레놀" {
			writeJSON(w, `{"body":{"items":[{"ITEM_NAME":"타이레놀정500밀리그람"}]}}`)
			return
		}
		writeJSON(w, `{"body":{"totalCount":0}}`)
	})

	term, items := c.Grain().Lookup(context.Background(), "타이레놀５００")
	assert.Equal(t, "타이레놀", term)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"타이레놀５００", "타이레놀"}, rec.all())
}

func TestGrainLookup_NoDigitsNoMatchIsOneRequest(t *testing.T) {
	rec := &recordedTerms{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Query().Get("item_name"))
		writeJSON(w, `{"body":{"items":""}}`)
	})

	term, items := c.Grain().Lookup(context.Background(), "없는약")
	assert.Equal(t, "없는약", term)
	assert.Nil(t, items)
	assert.Len(t, rec.all(), 1)
}

func TestGrainLookup_RetryHappensAtMostOnce(t *testing.T) {
	rec := &recordedTerms{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Query().Get("item_name"))
		writeJSON(w, `{"body":{"items":[]}}`)
	})

	_, items := c.Grain().Lookup(context.Background(), "약정12")
	assert.Nil(t, items)
	assert.Equal(t, []string{"약정12", "약정"}, rec.all())
}

func TestGrainLookup_FailureIsNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	term, items := c.Grain().Lookup(context.Background(), "타이레놀500")
	assert.Equal(t, "타이레놀500", term)
	assert.Nil(t, items)
}
