// Package chart defines the two chart kinds produced by LiveCare: the
// multidisciplinary care chart built from a prescription and the medical
// chart built from a recorded consultation.
package chart

import (
	"strings"
	"time"

	"github.com/turtacn/livecare/pkg/errors"
)

// Kind selects the chart family and its backing table.
type Kind string

const (
	KindPrescription Kind = "prescription"
	KindVoice        Kind = "voice"
)

// ParseKind accepts "prescription" or "voice" in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPrescription:
		return KindPrescription, nil
	case KindVoice:
		return KindVoice, nil
	}
	return "", errors.New(errors.ErrCodeChartKindInvalid, "chart kind must be prescription or voice").
		WithDetail(s)
}

// Table returns the relational table holding charts of this kind.
func (k Kind) Table() string {
	if k == KindVoice {
		return "voice_medical_charts"
	}
	return "medical_charts"
}

// FileMetadata describes the audio recording a voice chart was built from.
type FileMetadata struct {
	Name string `json:"file_name"`
	Size int64  `json:"file_size"`
	Type string `json:"file_type"`
	Hash string `json:"file_hash"`
}

// Chart is a generated chart document.
type Chart struct {
	ID        int64         `json:"id"`
	Kind      Kind          `json:"kind"`
	PatientID *int64        `json:"patient_id,omitempty"`
	Content   string        `json:"content"`
	File      *FileMetadata `json:"file,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
