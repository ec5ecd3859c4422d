package config

import (
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/smbo/internal/harness"
	"github.com/GoSim-25-26J-441/smbo/internal/infill"
	"github.com/GoSim-25-26J-441/smbo/internal/resultlog"
	"github.com/GoSim-25-26J-441/smbo/internal/smbo"
	"github.com/GoSim-25-26J-441/smbo/internal/space"
	"github.com/GoSim-25-26J-441/smbo/internal/surrogate"
)

// Space builds the search space from the parameter declarations.
func (c *RunConfig) Space() (*space.Space, error) {
	params := make([]space.Parameter, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		param := space.Parameter{
			Name:   p.Name,
			Kind:   space.Kind(strings.ToLower(p.Kind)),
			Values: p.Values,
		}
		if p.Lower != nil {
			param.Lower = *p.Lower
		}
		if p.Upper != nil {
			param.Upper = *p.Upper
		}
		params = append(params, param)
	}
	return space.New(params...)
}

// Strategy returns the initial design strategy.
func (c *RunConfig) Strategy() (space.Strategy, error) {
	return space.ParseStrategy(c.InitialDesign.Strategy, c.InitialDesign.Resolution)
}

// OptimizationDirection returns the parsed direction.
func (c *RunConfig) OptimizationDirection() (resultlog.Direction, error) {
	return resultlog.ParseDirection(c.Direction)
}

// Budget returns the run budget.
func (c *RunConfig) Budget() (smbo.Budget, error) {
	d, err := c.GetTimeBudget()
	if err != nil {
		return smbo.Budget{}, err
	}
	return smbo.Budget{Iterations: c.Iterations, Time: d}, nil
}

// NewExtractor builds the configured extractor.
func (c *RunConfig) NewExtractor() (harness.Extractor, error) {
	e := c.Extractor
	return harness.NewExtractor(harness.ExtractorSpec{
		Kind:      e.Kind,
		Marker:    e.Marker,
		Field:     e.Field,
		Column:    e.Column,
		Row:       e.Row,
		Delimiter: e.Delimiter,
		Path:      e.Path,
	})
}

// NewModel builds the configured surrogate model.
func (c *RunConfig) NewModel() (surrogate.Model, error) {
	return surrogate.New(c.Surrogate.Kind, surrogate.Options{
		LengthScale: c.Surrogate.LengthScale,
		Noise:       c.Surrogate.Noise,
	})
}

// NewAcquisition builds the configured acquisition function.
func (a *Acquisition) NewAcquisition() (infill.Acquisition, error) {
	return infill.NewAcquisition(a.Kind, infill.AcquisitionOptions{Xi: a.Xi, Beta: a.Beta})
}

// InfillConfig returns the proposer configuration.
func (c *RunConfig) InfillConfig() (infill.Config, error) {
	acq, err := c.Acquisition.NewAcquisition()
	if err != nil {
		return infill.Config{}, err
	}
	return infill.Config{
		Acquisition: acq,
		Candidates:  c.Acquisition.Candidates,
		Restarts:    c.Acquisition.Restarts,
	}, nil
}

// HarnessConfig returns the harness configuration over s. Logger and
// Observer are left for the caller.
func (c *RunConfig) HarnessConfig(s *space.Space) (harness.Config, error) {
	extractor, err := c.NewExtractor()
	if err != nil {
		return harness.Config{}, err
	}
	timeout, err := c.Command.GetTimeout()
	if err != nil {
		return harness.Config{}, err
	}
	return harness.Config{
		Space: s,
		Command: harness.Command{
			Program: c.Command.Program,
			Args:    c.Command.Args,
			Env:     c.Command.Env,
			Dir:     c.Command.Dir,
		},
		Extractor:   extractor,
		WorkDir:     c.Command.WorkDir,
		Timeout:     timeout,
		Cleanup:     c.Command.Cleanup,
		Parallelism: c.Parallelism,
	}, nil
}

// StopPredicates returns the configured early-stop predicates.
func (c *RunConfig) StopPredicates() []smbo.StopPredicate {
	if c.Stopping == nil {
		return nil
	}
	var preds []smbo.StopPredicate
	if c.Stopping.Target != nil {
		preds = append(preds, smbo.TargetStrategy{Target: *c.Stopping.Target})
	}
	if c.Stopping.NoImprovement > 0 {
		preds = append(preds, smbo.NoImprovementStrategy{Window: c.Stopping.NoImprovement})
	}
	if c.Stopping.PlateauWindow > 0 {
		preds = append(preds, smbo.PlateauStrategy{
			Window:    c.Stopping.PlateauWindow,
			Tolerance: c.Stopping.PlateauTolerance,
		})
	}
	return preds
}

// LoopConfig assembles the loop configuration for s and evaluator. seed is
// used when the file does not set one.
func (c *RunConfig) LoopConfig(s *space.Space, evaluator smbo.Evaluator, seed int64) (smbo.Config, error) {
	strategy, err := c.Strategy()
	if err != nil {
		return smbo.Config{}, err
	}
	dir, err := c.OptimizationDirection()
	if err != nil {
		return smbo.Config{}, err
	}
	budget, err := c.Budget()
	if err != nil {
		return smbo.Config{}, err
	}
	model, err := c.NewModel()
	if err != nil {
		return smbo.Config{}, err
	}
	inf, err := c.InfillConfig()
	if err != nil {
		return smbo.Config{}, err
	}
	if c.Seed != nil {
		seed = *c.Seed
	}
	if s == nil || evaluator == nil {
		return smbo.Config{}, fmt.Errorf("space and evaluator are required")
	}
	return smbo.Config{
		Space:           s,
		Evaluator:       evaluator,
		Model:           model,
		Infill:          inf,
		Direction:       dir,
		InitialStrategy: strategy,
		InitialSize:     c.InitialDesign.Size,
		Budget:          budget,
		BatchSize:       c.BatchSize,
		RefitEvery:      c.RefitEvery,
		Seed:            seed,
	}, nil
}
