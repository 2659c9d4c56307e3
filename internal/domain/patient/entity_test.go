package patient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAge_UnmarshalVariants(t *testing.T) {
	cases := map[string]Age{
		`45`:      45,
		`45.0`:    45,
		`"45"`:    45,
		`"만 62세"`: 62,
		`"미상"`:    0,
		`null`:    0,
	}
	for in, want := range cases {
		var a Age
		require.NoError(t, json.Unmarshal([]byte(in), &a), in)
		assert.Equal(t, want, a, in)
	}
}

func TestMetadata_ToPatient_ResolvedNamesOverride(t *testing.T) {
	m := Metadata{Name: "홍길동", Age: 40, Gender: "남", Medications: []string{"타이레놀"}}

	p := m.ToPatient([]string{"타이레놀정500밀리그람", "게보린정"})
	require.NotNil(t, p.Age)
	assert.Equal(t, 40, *p.Age)
	assert.Equal(t, []string{"타이레놀정500밀리그람", "게보린정"}, p.Medications)

	p = m.ToPatient(nil)
	assert.Equal(t, []string{"타이레놀"}, p.Medications)
}

func TestMetadata_ToPatient_UnknownAgeIsNil(t *testing.T) {
	p := Metadata{Name: "김철수"}.ToPatient(nil)
	assert.Nil(t, p.Age)
	assert.NotNil(t, p.Medications)
}
