package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/GoSim-25-26J-441/smbo/internal/resultlog"
)

// LoadRunConfig loads and parses a run configuration file
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseRunConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration again, e.g. after fields were
// overridden from the command line.
func (c *RunConfig) Validate() error {
	if err := validateRunConfig(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// validateRunConfig performs validation on the run configuration
func validateRunConfig(cfg *RunConfig) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	// Budget
	if cfg.Iterations < 0 {
		return fmt.Errorf("iterations cannot be negative, got %d", cfg.Iterations)
	}
	timeBudget, err := cfg.GetTimeBudget()
	if err != nil {
		return fmt.Errorf("invalid time_budget %s: %w", cfg.TimeBudget, err)
	}
	if timeBudget < 0 {
		return fmt.Errorf("time_budget cannot be negative, got %s", cfg.TimeBudget)
	}
	if cfg.Iterations == 0 && timeBudget == 0 {
		return fmt.Errorf("iterations or time_budget must be set")
	}

	if _, err := resultlog.ParseDirection(cfg.Direction); err != nil {
		return err
	}
	if cfg.BatchSize < 0 {
		return fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Parallelism < 0 {
		return fmt.Errorf("parallelism must be positive, got %d", cfg.Parallelism)
	}
	if cfg.RefitEvery < 0 {
		return fmt.Errorf("refit_every must be positive, got %d", cfg.RefitEvery)
	}

	if err := validateInitialDesign(cfg.InitialDesign); err != nil {
		return fmt.Errorf("initial_design validation failed: %w", err)
	}
	if err := validateParameters(cfg.Parameters); err != nil {
		return fmt.Errorf("parameters validation failed: %w", err)
	}
	if err := validateCommand(&cfg.Command); err != nil {
		return fmt.Errorf("command validation failed: %w", err)
	}
	if _, err := cfg.NewExtractor(); err != nil {
		return fmt.Errorf("extractor validation failed: %w", err)
	}
	if _, err := cfg.NewModel(); err != nil {
		return fmt.Errorf("surrogate validation failed: %w", err)
	}
	if err := validateAcquisition(cfg.Acquisition); err != nil {
		return fmt.Errorf("acquisition validation failed: %w", err)
	}
	if err := validateStopping(cfg.Stopping); err != nil {
		return fmt.Errorf("stopping validation failed: %w", err)
	}
	if cfg.Export != nil && strings.TrimSpace(cfg.Export.Path) == "" {
		return fmt.Errorf("export path cannot be empty")
	}

	// The parameters are valid individually; the space checks them together.
	if _, err := cfg.Space(); err != nil {
		return err
	}
	return nil
}

// validateInitialDesign validates the initial design section
func validateInitialDesign(d *InitialDesign) error {
	validStrategies := map[string]bool{
		"grid":            true,
		"random":          true,
		"uniform":         true,
		"lhs":             true,
		"latin_hypercube": true,
	}
	if !validStrategies[strings.ToLower(d.Strategy)] {
		return fmt.Errorf("invalid strategy: %s (must be grid, random, or lhs)", d.Strategy)
	}
	if d.Size < 0 {
		return fmt.Errorf("size cannot be negative, got %d", d.Size)
	}
	if d.Resolution < 0 {
		return fmt.Errorf("resolution cannot be negative, got %d", d.Resolution)
	}
	return nil
}

// validateParameters validates the parameter declarations
func validateParameters(params []Parameter) error {
	if len(params) == 0 {
		return fmt.Errorf("at least one parameter must be defined")
	}
	names := make(map[string]bool)
	for i, p := range params {
		if p.Name == "" {
			return fmt.Errorf("parameter %d: name cannot be empty", i)
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate parameter name: %s", p.Name)
		}
		names[p.Name] = true

		switch strings.ToLower(p.Kind) {
		case "continuous", "integer":
			if p.Lower == nil || p.Upper == nil {
				return fmt.Errorf("parameter %s: lower and upper are required", p.Name)
			}
			if len(p.Values) > 0 {
				return fmt.Errorf("parameter %s: values are only valid for categorical parameters", p.Name)
			}
		case "categorical":
			if len(p.Values) == 0 {
				return fmt.Errorf("parameter %s: values are required", p.Name)
			}
			if p.Lower != nil || p.Upper != nil {
				return fmt.Errorf("parameter %s: bounds are not valid for categorical parameters", p.Name)
			}
		default:
			return fmt.Errorf("parameter %s: invalid kind %s (must be continuous, integer, or categorical)", p.Name, p.Kind)
		}
	}
	return nil
}

// validateCommand validates the external program section
func validateCommand(c *Command) error {
	if strings.TrimSpace(c.Program) == "" {
		return fmt.Errorf("program cannot be empty")
	}
	timeout, err := c.GetTimeout()
	if err != nil {
		return fmt.Errorf("invalid timeout %s: %w", c.Timeout, err)
	}
	if timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", c.Timeout)
	}
	for k := range c.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return fmt.Errorf("invalid environment variable name %q", k)
		}
	}
	return nil
}

// validateAcquisition validates the acquisition section
func validateAcquisition(a *Acquisition) error {
	if _, err := a.NewAcquisition(); err != nil {
		return err
	}
	if a.Beta < 0 {
		return fmt.Errorf("beta cannot be negative, got %f", a.Beta)
	}
	if a.Candidates < 0 {
		return fmt.Errorf("candidates cannot be negative, got %d", a.Candidates)
	}
	if a.Restarts < 0 {
		return fmt.Errorf("restarts cannot be negative, got %d", a.Restarts)
	}
	return nil
}

func validateStopping(st *Stopping) error {
	if st == nil {
		return nil
	}
	if st.NoImprovement < 0 {
		return fmt.Errorf("no_improvement cannot be negative, got %d", st.NoImprovement)
	}
	if st.PlateauWindow < 0 {
		return fmt.Errorf("plateau_window cannot be negative, got %d", st.PlateauWindow)
	}
	if st.PlateauWindow == 1 {
		return fmt.Errorf("plateau_window must be at least 2")
	}
	if st.PlateauTolerance < 0 {
		return fmt.Errorf("plateau_tolerance cannot be negative, got %g", st.PlateauTolerance)
	}
	return nil
}
