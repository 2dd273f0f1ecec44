// Package plan loads set plans: YAML files describing how each logical set
// of the bridge is configured at startup.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/registry"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrDuplicateSet = errors.New("plan: set listed more than once")

type Plan struct {
	Defaults bool      `yaml:"defaults" json:"defaults"`
	Scan     bool      `yaml:"scan" json:"scan"`
	Sets     []SetPlan `yaml:"sets" json:"sets"`
}

type SetPlan struct {
	Set         string             `yaml:"set" json:"set"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Params      map[string]float64 `yaml:"params" json:"params"`
}

// Index returns the set index for the plan's set letter.
func (s SetPlan) Index() int {
	if len(s.Set) != 1 {
		return -1
	}
	return int(s.Set[0] - 'A')
}

// Config returns the parameters InitChannel receives for this set.
func (s SetPlan) Config(withDefaults bool) map[string]float64 {
	cfg := make(map[string]float64, len(s.Params))
	if withDefaults {
		for name, v := range registry.Defaults() {
			cfg[name] = v
		}
	}
	for name, v := range s.Params {
		cfg[name] = v
	}
	return cfg
}

type Loader struct {
	validator *Validator
	logger    *zap.Logger
}

func NewLoader(logger *zap.Logger) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator: validator,
		logger:    logger,
	}, nil
}

func (l *Loader) Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	p, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}

	l.logger.Info("Set plan loaded",
		zap.String("path", path),
		zap.Int("sets", len(p.Sets)))

	return p, nil
}

// Parse decodes a YAML plan, validates it against the schema and rejects
// duplicate sets.
func (l *Loader) Parse(data []byte) (*Plan, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	// The schema validator works on JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert plan: %w", err)
	}
	if err := l.validator.ValidateJSON(raw); err != nil {
		return nil, err
	}

	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}

	seen := make(map[string]bool, len(p.Sets))
	for _, s := range p.Sets {
		if seen[s.Set] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSet, s.Set)
		}
		seen[s.Set] = true
	}

	return &p, nil
}

// Configurer is the part of the controller a plan is applied to.
type Configurer interface {
	InitChannel(ctx context.Context, set int, config map[string]float64) (types.SetSnapshot, error)
}

// Apply initializes every set of the plan in listed order and stops at the
// first failure.
func Apply(ctx context.Context, target Configurer, p *Plan, logger *zap.Logger) error {
	for _, s := range p.Sets {
		snap, err := target.InitChannel(ctx, s.Index(), s.Config(p.Defaults))
		if err != nil {
			return fmt.Errorf("set %s: %w", s.Set, err)
		}

		logger.Info("Applied set plan",
			zap.String("set", s.Set),
			zap.String("description", s.Description),
			zap.Bool("active", snap.Active),
			zap.Uint8("channel", snap.PhysicalChannel))
	}
	return nil
}
