package backtest

import (
	"fmt"
	"sort"
	"strings"

	"option-backtester/internal/analysis/indicators"
	"option-backtester/internal/analysis/signals"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
)

// DefaultActivationThreshold is the combined score a weighted signal set
// must reach to open a position.
const DefaultActivationThreshold = 0.3

// EntrySignal is the outcome of an entry check on one bar.
type EntrySignal struct {
	Triggered bool
	Score     float64
	// Direction is meaningful only when HasDirection is set.
	Direction    models.Direction
	HasDirection bool
	Signals      []string
}

// EntryPredicate decides whether a position should be opened on bar idx.
// Implementations must only read bars up to and including idx.
type EntryPredicate interface {
	Name() string
	Check(frame *indicators.Frame, idx int) EntrySignal
}

// Weighted is implemented by predicates built from a signal-weight map. The
// auto direction policy feeds the weights to the direction selector.
type Weighted interface {
	SignalWeights() map[string]float64
}

// SignalEntry triggers on a single named signal.
type SignalEntry struct {
	registry *signals.Registry
	signal   string
}

// NewSignalEntry returns a predicate for the named signal of registry.
func NewSignalEntry(registry *signals.Registry, name string) (*SignalEntry, error) {
	if registry == nil {
		registry = signals.DefaultRegistry()
	}
	if _, ok := registry.Lookup(name); !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownSignal, name)
	}
	return &SignalEntry{registry: registry, signal: name}, nil
}

// DefaultEntry enters on band compression.
func DefaultEntry() *SignalEntry {
	return &SignalEntry{registry: signals.DefaultRegistry(), signal: signals.BBCompression}
}

func (e *SignalEntry) Name() string { return e.signal }

func (e *SignalEntry) Check(frame *indicators.Frame, idx int) EntrySignal {
	triggered, strength := e.registry.Detect(e.signal, frame, idx)
	if !triggered {
		return EntrySignal{}
	}
	sig := EntrySignal{Triggered: true, Score: strength, Signals: []string{e.signal}}
	if dir, ok := signalLean(e.signal); ok {
		sig.Direction = dir
		sig.HasDirection = true
	}
	return sig
}

func signalLean(name string) (models.Direction, bool) {
	for _, s := range signals.BullishSignals {
		if s == name {
			return models.Bullish, true
		}
	}
	for _, s := range signals.BearishSignals {
		if s == name {
			return models.Bearish, true
		}
	}
	return "", false
}

// CombinationEntry triggers when the weighted signal score reaches Threshold.
type CombinationEntry struct {
	registry  *signals.Registry
	weights   map[string]float64
	threshold float64
	label     string
}

// NewCombinationEntry validates weights against registry. A non-positive
// threshold selects DefaultActivationThreshold.
func NewCombinationEntry(registry *signals.Registry, weights map[string]float64, threshold float64) (*CombinationEntry, error) {
	if registry == nil {
		registry = signals.DefaultRegistry()
	}
	if len(weights) == 0 {
		return nil, apperrors.NewValidationError("signal_weights", "", "at least one signal weight is required")
	}
	if err := registry.ValidateWeights(weights); err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = DefaultActivationThreshold
	}

	w := make(map[string]float64, len(weights))
	names := make([]string, 0, len(weights))
	for name, v := range weights {
		w[name] = v
		names = append(names, name)
	}
	sort.Strings(names)

	return &CombinationEntry{
		registry:  registry,
		weights:   w,
		threshold: threshold,
		label:     "combo(" + strings.Join(names, "+") + ")",
	}, nil
}

// WithLabel names the predicate, usually after a strategy preset.
func (e *CombinationEntry) WithLabel(label string) *CombinationEntry {
	if label != "" {
		e.label = label
	}
	return e
}

func (e *CombinationEntry) Name() string { return e.label }

// Threshold returns the activation threshold.
func (e *CombinationEntry) Threshold() float64 { return e.threshold }

// SignalWeights returns a copy of the weight map.
func (e *CombinationEntry) SignalWeights() map[string]float64 {
	out := make(map[string]float64, len(e.weights))
	for k, v := range e.weights {
		out[k] = v
	}
	return out
}

func (e *CombinationEntry) Check(frame *indicators.Frame, idx int) EntrySignal {
	eval := e.registry.Evaluate(frame, idx, e.weights)
	return EntrySignal{
		Triggered:    len(eval.Contributions) > 0 && eval.Score >= e.threshold,
		Score:        eval.Score,
		Direction:    eval.Direction,
		HasDirection: true,
		Signals:      eval.Active(),
	}
}

// EntryFunc adapts a plain function into an EntryPredicate named "custom".
type EntryFunc func(frame *indicators.Frame, idx int) EntrySignal

func (f EntryFunc) Name() string { return "custom" }

func (f EntryFunc) Check(frame *indicators.Frame, idx int) EntrySignal { return f(frame, idx) }
