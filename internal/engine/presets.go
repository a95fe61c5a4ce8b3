package engine

import (
	"fmt"

	"tradewise/internal/config"
	"tradewise/internal/strategy"
	"tradewise/internal/strategy/builtins"
)

// LoadPresets returns the built-in presets extended with those from the
// configuration. A configured preset replaces a built-in one of the same
// name.
func LoadPresets(presets []config.Preset) (*strategy.Registry, error) {
	r := builtins.Presets()
	for _, p := range presets {
		s, err := builtins.Parse(p.Strategy, strategy.Params(p.Params))
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		r.Register(p.Name, s)
	}
	return r, nil
}
