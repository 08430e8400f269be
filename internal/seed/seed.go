// Package seed loads YAML scenario files into the database. Scenarios
// describe decisions, assumptions, constraints, and the links between
// them; the engine applies one scenario idempotently by natural keys
// (titles and names) so re-running a seed is safe.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/decivue/decivue/internal/conflicts"
	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/storage"
)

// Scenario is one YAML seed file.
type Scenario struct {
	Name        string                 `yaml:"name"`
	Decisions   []DecisionSpec         `yaml:"decisions"`
	Assumptions []AssumptionSpec       `yaml:"assumptions"`
	Constraints []ConstraintSpec       `yaml:"constraints"`
	Conflicts   []DecisionConflictSpec `yaml:"conflicts"`
}

// DecisionSpec seeds one decision. Key is the handle assumptions and
// constraints reference it by within the scenario.
type DecisionSpec struct {
	Key                    string     `yaml:"key"`
	Title                  string     `yaml:"title"`
	Description            string     `yaml:"description"`
	Tier                   string     `yaml:"tier"`
	Locked                 bool       `yaml:"locked"`
	RequiresSecondReviewer bool       `yaml:"requires_second_reviewer"`
	ExpiryDate             *time.Time `yaml:"expiry_date"`
}

// AssumptionSpec seeds one assumption and its decision links.
type AssumptionSpec struct {
	Description string                `yaml:"description"`
	Status      string                `yaml:"status"`
	Scope       string                `yaml:"scope"`
	Category    string                `yaml:"category"`
	Decisions   []string              `yaml:"decisions"` // decision keys
	Budget      *model.BudgetParams   `yaml:"budget"`
	Market      *model.MarketParams   `yaml:"market"`
	Timeline    *model.TimelineParams `yaml:"timeline"`
}

// ConstraintSpec seeds one constraint and its decision links.
type ConstraintSpec struct {
	Name      string   `yaml:"name"`
	Rule      string   `yaml:"rule"`
	Type      string   `yaml:"type"`
	Immutable bool     `yaml:"immutable"`
	Decisions []string `yaml:"decisions"`
}

// DecisionConflictSpec seeds one manual decision conflict.
type DecisionConflictSpec struct {
	DecisionA    string  `yaml:"decision_a"` // decision key
	DecisionB    string  `yaml:"decision_b"`
	ConflictType string  `yaml:"conflict_type"`
	Confidence   float64 `yaml:"confidence"`
	Explanation  string  `yaml:"explanation"`
}

// LoadScenario parses a scenario YAML file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("seed: read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("seed: parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return Scenario{}, fmt.Errorf("seed: scenario %s has no name", path)
	}
	return s, nil
}

// Engine applies scenarios to the database.
type Engine struct {
	db       *storage.DB
	detector *conflicts.Detector
	logger   *slog.Logger

	// Concurrency bound for independent inserts within one phase.
	Workers int
}

// NewEngine creates a seed engine.
func NewEngine(db *storage.DB, detector *conflicts.Detector, logger *slog.Logger) *Engine {
	return &Engine{db: db, detector: detector, logger: logger, Workers: 4}
}

// Apply seeds one scenario. Decisions go first (assumptions and
// constraints reference them by key), then assumptions, constraints, and
// manual conflicts. Within each phase inserts run with bounded
// concurrency. Decisions that already exist (matched by title) are reused
// rather than duplicated.
func (e *Engine) Apply(ctx context.Context, s Scenario) error {
	e.logger.Info("seeding scenario", "scenario", s.Name,
		"decisions", len(s.Decisions),
		"assumptions", len(s.Assumptions),
		"constraints", len(s.Constraints),
	)

	keys, err := e.seedDecisions(ctx, s)
	if err != nil {
		return err
	}
	if err := e.seedAssumptions(ctx, s, keys); err != nil {
		return err
	}
	if err := e.seedConstraints(ctx, s, keys); err != nil {
		return err
	}
	if err := e.seedConflicts(ctx, s, keys); err != nil {
		return err
	}

	e.logger.Info("scenario seeded", "scenario", s.Name)
	return nil
}

// resolveDecisionByTitle finds an existing decision with this exact title.
func (e *Engine) resolveDecisionByTitle(ctx context.Context, title string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := e.db.Pool().QueryRow(ctx,
		`SELECT id FROM decisions WHERE title = $1 LIMIT 1`, title).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("seed: resolve decision %q: %w", title, err)
	}
	return id, true, nil
}

func (e *Engine) seedDecisions(ctx context.Context, s Scenario) (map[string]uuid.UUID, error) {
	keys := make(map[string]uuid.UUID, len(s.Decisions))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for _, spec := range s.Decisions {
		g.Go(func() error {
			if spec.Key == "" || spec.Title == "" {
				return fmt.Errorf("seed: decision needs key and title")
			}

			id, exists, err := e.resolveDecisionByTitle(gctx, spec.Title)
			if err != nil {
				return err
			}
			if !exists {
				d := model.Decision{
					Title:                  spec.Title,
					Description:            spec.Description,
					Locked:                 spec.Locked,
					RequiresSecondReviewer: spec.RequiresSecondReviewer,
					ExpiryDate:             spec.ExpiryDate,
				}
				if spec.Tier != "" {
					d.Tier = model.GovernanceTier(spec.Tier)
				}
				created, err := e.db.CreateDecision(gctx, d)
				if err != nil {
					return err
				}
				id = created.ID
			}

			mu.Lock()
			keys[spec.Key] = id
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (e *Engine) seedAssumptions(ctx context.Context, s Scenario, keys map[string]uuid.UUID) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for _, spec := range s.Assumptions {
		g.Go(func() error {
			decisionIDs, err := resolveKeys(spec.Decisions, keys)
			if err != nil {
				return err
			}

			a := model.Assumption{
				Description: spec.Description,
				Status:      model.AssumptionStatus(spec.Status),
				Scope:       model.AssumptionScope(spec.Scope),
				Category:    model.AssumptionCategory(spec.Category),
				Params: model.AssumptionParams{
					Budget:   spec.Budget,
					Market:   spec.Market,
					Timeline: spec.Timeline,
				},
			}
			if a.Status == "" {
				a.Status = model.AssumptionValid
			}
			if a.Scope == "" {
				a.Scope = model.ScopeDecisionSpecific
			}
			if a.Category == "" {
				a.Category = model.CategoryOther
			}
			if err := a.Params.Validate(a.Category); err != nil {
				return fmt.Errorf("seed: assumption %q: %w", spec.Description, err)
			}

			created, err := e.db.CreateAssumption(gctx, a, decisionIDs)
			if err != nil {
				return err
			}
			if _, err := e.detector.DetectAssumptionConflicts(gctx, created.ID); err != nil {
				e.logger.Warn("seed conflict detection failed", "assumption_id", created.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) seedConstraints(ctx context.Context, s Scenario, keys map[string]uuid.UUID) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for _, spec := range s.Constraints {
		g.Go(func() error {
			decisionIDs, err := resolveKeys(spec.Decisions, keys)
			if err != nil {
				return err
			}
			if !model.ValidConstraintType(spec.Type) {
				return fmt.Errorf("seed: constraint %q has unknown type %q", spec.Name, spec.Type)
			}

			_, err = e.db.CreateConstraint(gctx, model.Constraint{
				Name:      spec.Name,
				Rule:      spec.Rule,
				Type:      model.ConstraintType(spec.Type),
				Immutable: spec.Immutable,
			}, decisionIDs)
			return err
		})
	}
	return g.Wait()
}

func (e *Engine) seedConflicts(ctx context.Context, s Scenario, keys map[string]uuid.UUID) error {
	// Sequential: conflicts reference decision pairs and the volume is small.
	for _, spec := range s.Conflicts {
		a, ok := keys[spec.DecisionA]
		if !ok {
			return fmt.Errorf("seed: unknown decision key %q", spec.DecisionA)
		}
		b, ok := keys[spec.DecisionB]
		if !ok {
			return fmt.Errorf("seed: unknown decision key %q", spec.DecisionB)
		}

		confidence := spec.Confidence
		if confidence == 0 {
			confidence = 1.0
		}
		_, err := e.db.CreateDecisionConflict(ctx, model.DecisionConflict{
			DecisionAID:  a,
			DecisionBID:  b,
			ConflictType: model.ConflictType(spec.ConflictType),
			Confidence:   confidence,
			Explanation:  spec.Explanation,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func resolveKeys(refs []string, keys map[string]uuid.UUID) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		id, ok := keys[ref]
		if !ok {
			return nil, fmt.Errorf("seed: unknown decision key %q", ref)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
