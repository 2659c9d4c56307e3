package errors

import (
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeBadRequest      ErrorCode = "COMMON_002"
	ErrCodeNotFound        ErrorCode = "COMMON_005"
	ErrCodeConflict        ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests ErrorCode = "COMMON_007"
	ErrCodeTimeout         ErrorCode = "COMMON_009"
	ErrCodeValidation      ErrorCode = "COMMON_010"
	ErrCodeSerialization   ErrorCode = "COMMON_011"
	ErrCodeDatabaseError   ErrorCode = "COMMON_012"
	ErrCodeCacheError      ErrorCode = "COMMON_013"
	ErrCodeExternalService ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled ErrorCode = "COMMON_015"
	ErrCodeCacheMiss       ErrorCode = "COMMON_016"
)

// Drug Module Error Codes
const (
	ErrCodeDrugNotFound        ErrorCode = "DRG_001"
	ErrCodeDrugDetailMalformed ErrorCode = "DRG_002"
	ErrCodeSummarizationFailed ErrorCode = "DRG_003"
	ErrCodeRegistryUnavailable ErrorCode = "DRG_004"
)

// Patient / Chart Module Error Codes
const (
	ErrCodePatientNotFound  ErrorCode = "PAT_001"
	ErrCodeChartNotFound    ErrorCode = "CHT_001"
	ErrCodeChartIDMismatch  ErrorCode = "CHT_002"
	ErrCodeChartKindInvalid ErrorCode = "CHT_003"
)

// Collaborator Error Codes
const (
	ErrCodeOCRFailed           ErrorCode = "EXT_001"
	ErrCodeTranscriptionFailed ErrorCode = "EXT_002"
	ErrCodeLLMFailed           ErrorCode = "EXT_003"
	ErrCodeStorageFailed       ErrorCode = "EXT_004"
	ErrCodeEventPublishFailed  ErrorCode = "EXT_005"
)

// Aliases used by call sites that predate the prefixed names.
const (
	CodeUnknown      = ErrorCode("UNKNOWN")
	CodeOK           = ErrorCode("OK")
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
)

// exitCodes maps error code prefixes to process exit statuses for the CLI.
var exitCodes = map[ErrorCode]int{
	ErrCodeBadRequest:       2,
	ErrCodeValidation:       2,
	ErrCodeChartIDMismatch:  2,
	ErrCodeChartKindInvalid: 2,
	ErrCodeNotFound:         3,
	ErrCodeDrugNotFound:     3,
	ErrCodePatientNotFound:  3,
	ErrCodeChartNotFound:    3,
	ErrCodeDatabaseError:    4,
	ErrCodeTimeout:          5,
}

// ExitCode returns the CLI exit status for an error code. Unmapped codes exit 1.
func ExitCode(code ErrorCode) int {
	if c, ok := exitCodes[code]; ok {
		return c
	}
	return 1
}

// Module returns the module prefix of the code, e.g. "DRG" for "DRG_001".
func (c ErrorCode) Module() string {
	s := string(c)
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return s
}
