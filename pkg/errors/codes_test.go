package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_Module(t *testing.T) {
	assert.Equal(t, "DRG", ErrCodeDrugNotFound.Module())
	assert.Equal(t, "COMMON", ErrCodeDatabaseError.Module())
	assert.Equal(t, "OK", CodeOK.Module())
}

func TestExitCode(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrCodeValidation:      2,
		ErrCodeChartIDMismatch: 2,
		ErrCodeChartNotFound:   3,
		ErrCodeDatabaseError:   4,
		ErrCodeTimeout:         5,
		ErrCodeLLMFailed:       1,
		CodeUnknown:            1,
	}
	for code, want := range cases {
		assert.Equal(t, want, ExitCode(code), code.String())
	}
}

func TestErrorCodes_AreUnique(t *testing.T) {
	all := []ErrorCode{
		ErrCodeInternal, ErrCodeBadRequest, ErrCodeNotFound, ErrCodeConflict,
		ErrCodeTooManyRequests, ErrCodeTimeout, ErrCodeValidation, ErrCodeSerialization,
		ErrCodeDatabaseError, ErrCodeCacheError, ErrCodeExternalService, ErrCodeFeatureDisabled,
		ErrCodeDrugNotFound, ErrCodeDrugDetailMalformed, ErrCodeSummarizationFailed, ErrCodeRegistryUnavailable,
		ErrCodePatientNotFound, ErrCodeChartNotFound, ErrCodeChartIDMismatch, ErrCodeChartKindInvalid,
		ErrCodeOCRFailed, ErrCodeTranscriptionFailed, ErrCodeLLMFailed, ErrCodeStorageFailed, ErrCodeEventPublishFailed,
	}
	seen := make(map[ErrorCode]bool, len(all))
	for _, c := range all {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
}
