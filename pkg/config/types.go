package config

import "time"

// RunConfig is the complete configuration of one optimization run.
type RunConfig struct {
	LogLevel      string         `yaml:"log_level"`
	Iterations    int            `yaml:"iterations,omitempty"`
	TimeBudget    string         `yaml:"time_budget,omitempty"` // e.g. "30m"
	Seed          *int64         `yaml:"seed,omitempty"`
	Direction     string         `yaml:"direction,omitempty"` // minimize or maximize
	BatchSize     int            `yaml:"batch_size,omitempty"`
	Parallelism   int            `yaml:"parallelism,omitempty"`
	RefitEvery    int            `yaml:"refit_every,omitempty"`
	InitialDesign *InitialDesign `yaml:"initial_design,omitempty"`
	Parameters    []Parameter    `yaml:"parameters"`
	Command       Command        `yaml:"command"`
	Extractor     *Extractor     `yaml:"extractor,omitempty"`
	Surrogate     *Surrogate     `yaml:"surrogate,omitempty"`
	Acquisition   *Acquisition   `yaml:"acquisition,omitempty"`
	Stopping      *Stopping      `yaml:"stopping,omitempty"`
	Export        *Export        `yaml:"export,omitempty"`
	Status        *Status        `yaml:"status,omitempty"`
}

// InitialDesign selects the space-filling design evaluated before the first fit
type InitialDesign struct {
	Strategy   string `yaml:"strategy"` // grid, random or lhs
	Size       int    `yaml:"size,omitempty"`
	Resolution int    `yaml:"resolution,omitempty"`
}

// Parameter declares one dimension of the search space
type Parameter struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"` // continuous, integer or categorical
	Lower  *float64 `yaml:"lower,omitempty"`
	Upper  *float64 `yaml:"upper,omitempty"`
	Values []string `yaml:"values,omitempty"`
}

// Command describes the external program
type Command struct {
	Program string            `yaml:"program"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Dir     string            `yaml:"dir,omitempty"`      // process working directory
	WorkDir string            `yaml:"work_dir,omitempty"` // artifact directory
	Timeout string            `yaml:"timeout,omitempty"`
	Cleanup bool              `yaml:"cleanup,omitempty"`
}

// Extractor selects how the objective value is read from the artifact
type Extractor struct {
	Kind      string `yaml:"kind"` // marker, tagvalue, table or structured
	Marker    string `yaml:"marker,omitempty"`
	Field     string `yaml:"field,omitempty"`
	Column    string `yaml:"column,omitempty"`
	Row       string `yaml:"row,omitempty"` // first or last
	Delimiter string `yaml:"delimiter,omitempty"`
	Path      string `yaml:"path,omitempty"`
}

// Surrogate configures the surrogate model
type Surrogate struct {
	Kind        string  `yaml:"kind"` // gp or kernel
	LengthScale float64 `yaml:"length_scale,omitempty"`
	Noise       float64 `yaml:"noise,omitempty"`
}

// Acquisition configures the infill criterion and its search
type Acquisition struct {
	Kind       string  `yaml:"kind"` // ei, pi or lcb
	Xi         float64 `yaml:"xi,omitempty"`
	Beta       float64 `yaml:"beta,omitempty"`
	Candidates int     `yaml:"candidates,omitempty"`
	Restarts   int     `yaml:"restarts,omitempty"`
}

// Stopping configures optional early-stop predicates
type Stopping struct {
	Target           *float64 `yaml:"target,omitempty"`
	NoImprovement    int      `yaml:"no_improvement,omitempty"`
	PlateauWindow    int      `yaml:"plateau_window,omitempty"`
	PlateauTolerance float64  `yaml:"plateau_tolerance,omitempty"`
}

// Export configures where the final result is written
type Export struct {
	Path    string `yaml:"path"`
	History bool   `yaml:"history,omitempty"`
}

// Status configures the optional status servers
type Status struct {
	HTTPAddr string `yaml:"http_addr,omitempty"`
	GRPCAddr string `yaml:"grpc_addr,omitempty"`
}

// GetTimeBudget parses the time budget; an empty value is zero
func (c *RunConfig) GetTimeBudget() (time.Duration, error) {
	if c.TimeBudget == "" {
		return 0, nil
	}
	return time.ParseDuration(c.TimeBudget)
}

// GetTimeout parses the per-evaluation timeout; an empty value is zero
func (c *Command) GetTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Timeout)
}
