package types

import (
	"errors"
	"time"
)

// DefaultUnloadDebounce is the delay between a field's retain count reaching
// zero and the actual release of its cached data. The window absorbs rapid
// watch/unwatch/watch sequences (a UI remount, for example) without backend
// unsubscribe/resubscribe churn.
const DefaultUnloadDebounce = 500 * time.Millisecond

// Config holds tuning parameters for a TableCache instance.
type Config struct {
	// UnloadDebounce overrides DefaultUnloadDebounce when positive. The
	// zero value selects the default.
	UnloadDebounce time.Duration `json:"unload_debounce" yaml:"unload_debounce"`
}

// Config validation errors.
var (
	ErrDebounceInvalid = errors.New("unload debounce must not be negative")
)

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.UnloadDebounce < 0 {
		return ErrDebounceInvalid
	}
	return nil
}

// EffectiveUnloadDebounce resolves the configured debounce window, applying
// the default for the zero value.
func (c Config) EffectiveUnloadDebounce() time.Duration {
	if c.UnloadDebounce > 0 {
		return c.UnloadDebounce
	}
	return DefaultUnloadDebounce
}
