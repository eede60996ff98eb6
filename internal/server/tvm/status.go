package tvm

import (
	"errors"

	"github.com/dmitrijs2005/gophtvm/internal/common"
)

// Status is the symbolic outcome of a vending operation.
type Status int

const (
	StatusOK Status = iota
	StatusBadRequest
	StatusRequestTimeout
	StatusUnauthorized
	StatusNotAcceptable
	StatusInternalError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad_request"
	case StatusRequestTimeout:
		return "request_timeout"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusNotAcceptable:
		return "not_acceptable"
	default:
		return "internal_error"
	}
}

// ClassifyFailure maps an operation error to its status. ErrorInternal
// wins over any cause it wraps; unknown errors are internal too.
func ClassifyFailure(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, common.ErrorInternal):
		return StatusInternalError
	case errors.Is(err, common.ErrorValidation):
		return StatusBadRequest
	case errors.Is(err, common.ErrorStaleTimestamp):
		return StatusRequestTimeout
	case errors.Is(err, common.ErrorUnauthorized):
		return StatusUnauthorized
	case errors.Is(err, common.ErrorConflict):
		return StatusNotAcceptable
	default:
		return StatusInternalError
	}
}
