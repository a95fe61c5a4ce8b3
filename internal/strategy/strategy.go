// Package strategy defines the Strategy interface for trading rules, the
// parameter and error types they share, and a Registry of named presets.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"tradewise/internal/domain"
)

// Policy selects how a strategy's raw signals become held positions.
type Policy int

const (
	// PolicyDirect holds exactly the current bar's signal.
	PolicyDirect Policy = iota
	// PolicyPersisted carries the last non-zero signal forward until a new
	// non-zero signal replaces it.
	PolicyPersisted
)

// String returns "direct" or "persisted".
func (p Policy) String() string {
	if p == PolicyPersisted {
		return "persisted"
	}
	return "direct"
}

// Strategy is the interface that all trading rules implement. A Strategy is
// built once with fixed parameters and is a pure function of the series it
// is given.
type Strategy interface {
	// Name returns the strategy family, e.g. "RSI".
	Name() string

	// String returns the name with its parameters, e.g.
	// "RSI(period=14, oversold=30, overbought=70)".
	String() string

	// Policy returns the position resolution policy for this family.
	Policy() Policy

	// Signals evaluates the rule on every bar and returns one signal per bar.
	// Bars inside the indicator warm-up yield domain.SignalNone.
	Signals(series *domain.Series) []domain.Signal
}

// Kind enumerates the supported strategy families.
type Kind string

const (
	KindMovingAverage Kind = "MovingAverage"
	KindRSI           Kind = "RSI"
	KindBollinger     Kind = "Bollinger"
)

// Kinds lists every supported family in display order.
var Kinds = []Kind{KindMovingAverage, KindRSI, KindBollinger}

var (
	// ErrUnknownStrategy is returned for a selector that names no family.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidParams is returned when strategy parameters fail validation.
	ErrInvalidParams = errors.New("invalid strategy parameters")
)

// ParseKind resolves a strategy selector. Matching is case-insensitive and
// accepts the short aliases "MA", "SMA" and "BB".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movingaverage", "moving_average", "ma", "sma":
		return KindMovingAverage, nil
	case "rsi":
		return KindRSI, nil
	case "bollinger", "bollingerbands", "bb":
		return KindBollinger, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// ParamError describes a single invalid parameter.
type ParamError struct {
	Strategy Kind
	Param    string
	Value    any
	Reason   string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: parameter %s=%v %s", e.Strategy, e.Param, e.Value, e.Reason)
}

// Unwrap lets callers match ErrInvalidParams with errors.Is.
func (e *ParamError) Unwrap() error { return ErrInvalidParams }

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry holds named, pre-configured strategies (presets) for lookup and
// enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy under the given preset name, replacing any
// previous entry.
func (r *Registry) Register(name string, s Strategy) {
	r.strategies[name] = s
}

// Get retrieves a preset by name. The second return value indicates whether
// the preset was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered preset names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
