package custody

import "time"

// NoConflictRetries disables re-running an operation after a version conflict
const NoConflictRetries = -1

// Options tunes the custody services
type Options struct {
	// TreasuryTimeout bounds every TreasuryGateway call
	TreasuryTimeout time.Duration
	// MaxConflictRetries is how often an operation is re-run after an optimistic
	// version conflict. Zero selects the default, NoConflictRetries turns retries off.
	MaxConflictRetries int
}

// DefaultOptions returns the defaults used when a field is left zero
func DefaultOptions() Options {
	return Options{
		TreasuryTimeout:    10 * time.Second,
		MaxConflictRetries: 3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TreasuryTimeout <= 0 {
		o.TreasuryTimeout = d.TreasuryTimeout
	}
	switch {
	case o.MaxConflictRetries == 0:
		o.MaxConflictRetries = d.MaxConflictRetries
	case o.MaxConflictRetries < 0:
		o.MaxConflictRetries = 0
	}
	return o
}
