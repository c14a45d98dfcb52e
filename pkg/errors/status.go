package errors

// Status is the result taxonomy shared by every synchronization primitive.
// Operations return a Go error; StatusOf folds it back into a Status.
type Status int

const (
	StatusNone Status = iota
	StatusGeneral
	StatusTimeout
	StatusNonInit
	StatusInterrupt
	// StatusUnknown is reserved and never produced by the primitives.
	StatusUnknown
)

var statusNames = [...]string{
	StatusNone:      "NONE",
	StatusGeneral:   "GENERAL",
	StatusTimeout:   "TIMEOUT",
	StatusNonInit:   "NON_INIT",
	StatusInterrupt: "INTERRUPT",
	StatusUnknown:   "UNKNOWN",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return statusNames[StatusUnknown]
	}
	return statusNames[s]
}

// StatusOf maps an error returned by a primitive onto the taxonomy.
// nil is NONE; errors without a status code are GENERAL.
func StatusOf(err error) Status {
	if err == nil {
		return StatusNone
	}
	switch GetCode(err) {
	case ErrCodeTimeout:
		return StatusTimeout
	case ErrCodeNonInit:
		return StatusNonInit
	case ErrCodeInterrupt:
		return StatusInterrupt
	case ErrCodeUnknown:
		return StatusUnknown
	default:
		return StatusGeneral
	}
}

// Err returns the sentinel error for s, or nil for NONE.
func (s Status) Err() error {
	switch s {
	case StatusNone:
		return nil
	case StatusTimeout:
		return ErrTimeout
	case StatusNonInit:
		return ErrNonInit
	case StatusInterrupt:
		return ErrInterrupt
	case StatusGeneral:
		return ErrGeneral
	default:
		return sentinel(ErrCodeUnknown, "unknown status")
	}
}
