package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/domain/patient"
	"github.com/turtacn/livecare/pkg/errors"
)

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ExtractMetadata asks the model for patient name, age, gender and
// medications found in the prescription text.
func (c *Client) ExtractMetadata(ctx context.Context, text string) (*patient.Metadata, error) {
	reply, err := c.Complete(ctx, PromptExtractMetadata, map[string]string{"text": text}, true)
	if err != nil {
		return nil, err
	}

	var md patient.Metadata
	if err := json.Unmarshal([]byte(stripFences(reply)), &md); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "llm: metadata reply is not valid JSON").
			WithDetail(truncate(reply, 200))
	}
	if err := c.validate.Struct(&md); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "llm: metadata failed validation")
	}
	md.Name = strings.TrimSpace(md.Name)
	md.Gender = strings.TrimSpace(md.Gender)
	return &md, nil
}

// Summarize condenses a cleaned drug document using the structured record as
// reference data.
func (c *Client) Summarize(ctx context.Context, document, reference string) (string, error) {
	reply, err := c.Complete(ctx, PromptSummarizeDrug, map[string]string{
		"DOCUMENT":       document,
		"REFERENCE_DATA": reference,
	}, false)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSummarizationFailed, "llm: summarization failed")
	}
	if reply == "" {
		return "", errors.New(errors.ErrCodeSummarizationFailed, "llm: empty summary")
	}
	return reply, nil
}

// ComposeCareChart writes the multidisciplinary care chart for a patient and
// the enriched drugs on the prescription.
func (c *Client) ComposeCareChart(ctx context.Context, p *patient.Patient, drugs []*drug.Projection) (string, error) {
	if drugs == nil {
		drugs = []*drug.Projection{}
	}
	patientJSON, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "llm: failed to encode patient")
	}
	drugJSON, err := json.Marshal(drugs)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "llm: failed to encode drugs")
	}
	return c.Complete(ctx, PromptCareChart, map[string]string{
		"PATIENT_INFO": string(patientJSON),
		"DRUG_INFO":    string(drugJSON),
	}, false)
}

// ComposeEncounterChart writes a medical chart from a consultation
// transcript.
func (c *Client) ComposeEncounterChart(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", errors.New(errors.ErrCodeValidation, "llm: transcript is empty")
	}
	return c.Complete(ctx, PromptEncounterChart, map[string]string{
		"CONVERSATION_TRANSCRIPT": transcript,
	}, false)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
