// Package patient defines the Patient Record created once per processed
// prescription.
package patient

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Patient is a closed record: its medication list is written together with
// the patient and there is no append path.
type Patient struct {
	ID          int64    `json:"id,omitempty"`
	Name        string   `json:"name"`
	Age         *int     `json:"age"`
	Gender      string   `json:"gender"`
	Medications []string `json:"medications"`
}

// Metadata is the patient information extracted from prescription text by
// the language model. Age arrives as a number or as free text such as "45세".
type Metadata struct {
	Name        string   `json:"name" validate:"omitempty,max=100"`
	Age         Age      `json:"age" validate:"omitempty,min=0,max=150"`
	Gender      string   `json:"gender" validate:"omitempty,max=20"`
	Medications []string `json:"medications" validate:"omitempty,dive,max=200"`
}

// Age accepts JSON numbers, numeric strings and strings with a unit suffix.
// Zero means unknown.
type Age int

var digitsRe = regexp.MustCompile(`\d+`)

// UnmarshalJSON implements json.Unmarshaler.
func (a *Age) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*a = 0
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*a = Age(int(n))
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	m := digitsRe.FindString(str)
	if m == "" {
		*a = 0
		return nil
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return err
	}
	*a = Age(v)
	return nil
}

// ToPatient builds the record to persist. A non-empty resolved item name
// list replaces whatever medications the model extracted.
func (m Metadata) ToPatient(resolvedItemNames []string) *Patient {
	p := &Patient{
		Name:        m.Name,
		Gender:      m.Gender,
		Medications: m.Medications,
	}
	if m.Age > 0 {
		age := int(m.Age)
		p.Age = &age
	}
	if len(resolvedItemNames) > 0 {
		p.Medications = append([]string(nil), resolvedItemNames...)
	}
	if p.Medications == nil {
		p.Medications = []string{}
	}
	return p
}
