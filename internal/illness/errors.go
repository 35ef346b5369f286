package illness

import "errors"

var (
	// ErrNotFound means the referenced episode or symptom does not
	// exist or is not owned by the caller.
	ErrNotFound = errors.New("illness: not found")

	// ErrConflict means the operation would violate an invariant,
	// e.g. reopening the episode that is already active.
	ErrConflict = errors.New("illness: conflict")

	// ErrValidation means the input is malformed.
	ErrValidation = errors.New("illness: invalid input")

	// ErrDiagnosisUnavailable means an external diagnosis-service call
	// failed, timed out or returned a malformed body. The symptom
	// mutation that triggered the pipeline is still persisted.
	ErrDiagnosisUnavailable = errors.New("illness: diagnosis unavailable")
)
