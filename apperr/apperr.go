package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeRoundAlreadyActive     Code = "ROUND_ALREADY_ACTIVE"
	CodeRoundNotActive         Code = "ROUND_NOT_ACTIVE"
	CodeInvalidTimeRange       Code = "INVALID_TIME_RANGE"
	CodeAlreadySubmitted       Code = "ALREADY_SUBMITTED"
	CodeInvalidPromptLength    Code = "INVALID_PROMPT_LENGTH"
	CodeTrialDataMissing       Code = "TRIAL_DATA_MISSING"
	CodeLevelStatsNotSet       Code = "LEVEL_STATS_NOT_SET"
	CodeInvalidStatRange       Code = "INVALID_STAT_RANGE"
	CodeInvalidAllocationDelta Code = "INVALID_ALLOCATION_DELTA"
	CodeInvalidSkill           Code = "INVALID_SKILL"
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeCharacterNotFound      Code = "CHARACTER_NOT_FOUND"
	CodeCharacterInactive      Code = "CHARACTER_INACTIVE"
	CodeTrialNotFound          Code = "TRIAL_NOT_FOUND"
	CodeRoundNotFound          Code = "ROUND_NOT_FOUND"
	CodePromptNotFound         Code = "PROMPT_NOT_FOUND"
	CodePlayerNotFound         Code = "PLAYER_NOT_FOUND"
	CodeTrialHasResults        Code = "TRIAL_HAS_RESULTS"
	CodeForbidden              Code = "FORBIDDEN"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeDatabaseError          Code = "DATABASE_ERROR"
	CodeInternalError          Code = "INTERNAL_ERROR"
)

var statusByCode = map[Code]int{
	CodeInvalidTransition:      http.StatusConflict,
	CodeRoundAlreadyActive:     http.StatusConflict,
	CodeRoundNotActive:         http.StatusConflict,
	CodeInvalidTimeRange:       http.StatusBadRequest,
	CodeAlreadySubmitted:       http.StatusConflict,
	CodeInvalidPromptLength:    http.StatusBadRequest,
	CodeTrialDataMissing:       http.StatusBadRequest,
	CodeLevelStatsNotSet:       http.StatusBadRequest,
	CodeInvalidStatRange:       http.StatusBadRequest,
	CodeInvalidAllocationDelta: http.StatusBadRequest,
	CodeInvalidSkill:           http.StatusBadRequest,
	CodeInvalidArgument:        http.StatusBadRequest,
	CodeCharacterNotFound:      http.StatusNotFound,
	CodeCharacterInactive:      http.StatusForbidden,
	CodeTrialNotFound:          http.StatusNotFound,
	CodeRoundNotFound:          http.StatusNotFound,
	CodePromptNotFound:         http.StatusNotFound,
	CodePlayerNotFound:         http.StatusNotFound,
	CodeTrialHasResults:        http.StatusConflict,
	CodeForbidden:              http.StatusForbidden,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeDatabaseError:          http.StatusInternalServerError,
	CodeInternalError:          http.StatusInternalServerError,
}

// Error carries a taxonomy code alongside a human readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Database wraps a persistence failure. The message stays generic; the cause is kept for logs.
func Database(err error) *Error {
	return &Error{Code: CodeDatabaseError, Message: "database operation failed", Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or CodeInternalError for anything untyped.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternalError
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func HTTPStatus(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}
