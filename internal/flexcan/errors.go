package flexcan

import "errors"

// Sentinel errors, classified by callers via errors.Is.
var (
	// ErrBadArgument reports an index or count outside its declared bound.
	// It is always returned before any hardware access.
	ErrBadArgument = errors.New("flexcan: bad argument")

	// ErrFailure reports that a bounded hardware wait did not observe the
	// expected condition in time. Hardware may be left partially
	// reconfigured; no rollback is attempted.
	ErrFailure = errors.New("flexcan: hardware wait expired")

	// ErrTimeout is Select's normal negative result: the bound elapsed
	// with no controller ready. It is not a hardware failure.
	ErrTimeout = errors.New("flexcan: no interface ready")
)
