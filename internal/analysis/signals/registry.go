// Package signals provides the named entry-signal library and the weighted
// multi-signal scorer used to trigger backtest entries.
package signals

import (
	"fmt"
	"sort"
	"sync"

	"option-backtester/internal/analysis/indicators"
	apperrors "option-backtester/internal/errors"
)

// WarmupBars is the history every detector needs before it may fire.
const WarmupBars = 50

// Detector reports whether a signal fires on bar idx of frame and how
// strongly, in [0, 1]. Detectors are pure and read nothing after idx.
type Detector func(frame *indicators.Frame, idx int) (bool, float64)

// Definition describes one named signal.
type Definition struct {
	Name          string
	Description   string
	DefaultWeight float64
	Detect        Detector
}

// Registry maps signal names to their definitions.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces a signal definition.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return apperrors.NewValidationError("name", def.Name, "signal name is required")
	}
	if def.Detect == nil {
		return apperrors.NewValidationError("detect", def.Name, "detector is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered signal names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions returns the registered definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// DefaultWeights returns every registered signal at its default weight.
func (r *Registry) DefaultWeights() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.defs))
	for name, def := range r.defs {
		out[name] = def.DefaultWeight
	}
	return out
}

// Detect runs the named detector on bar idx. Unknown names, bars inside the
// warm-up window and undefined indicators all read as not triggered.
func (r *Registry) Detect(name string, frame *indicators.Frame, idx int) (bool, float64) {
	def, ok := r.Lookup(name)
	if !ok || frame == nil || idx < WarmupBars || idx >= frame.Len() {
		return false, 0
	}
	triggered, strength := def.Detect(frame, idx)
	if !triggered {
		return false, 0
	}
	return true, clamp01(strength)
}

// ValidateWeights checks that every weighted signal exists and no weight is negative.
func (r *Registry) ValidateWeights(weights map[string]float64) error {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := r.Lookup(name); !ok {
			return fmt.Errorf("%w: %s", apperrors.ErrUnknownSignal, name)
		}
		if weights[name] < 0 {
			return apperrors.NewValidationError("signal_weights."+name, weights[name], "weight must not be negative")
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
