package config

import (
	"context"
	"strings"
	"testing"

	"github.com/GoSim-25-26J-441/smbo/internal/harness"
	"github.com/GoSim-25-26J-441/smbo/internal/smbo"
	"github.com/GoSim-25-26J-441/smbo/internal/space"
)

const minimalYAML = `
iterations: 5
parameters:
  - {name: x, kind: continuous, lower: 0, upper: 1}
command:
  program: ./objective
`

type fakeEvaluator struct{}

func (fakeEvaluator) EvaluateBatch(context.Context, []space.Point) []harness.BatchResult {
	return nil
}

func (fakeEvaluator) Parallelism() int {
	return 1
}

func TestParseRunConfigDefaults(t *testing.T) {
	cfg, err := ParseRunConfigYAMLString(minimalYAML)
	if err != nil {
		t.Fatalf("ParseRunConfigYAMLString failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.Direction != "minimize" {
		t.Errorf("expected default direction minimize, got %q", cfg.Direction)
	}
	if cfg.BatchSize != 1 || cfg.Parallelism != 1 || cfg.RefitEvery != 1 {
		t.Errorf("unexpected defaults: batch=%d parallelism=%d refit=%d", cfg.BatchSize, cfg.Parallelism, cfg.RefitEvery)
	}
	if cfg.InitialDesign.Strategy != "lhs" {
		t.Errorf("expected lhs initial design, got %q", cfg.InitialDesign.Strategy)
	}
	if cfg.Extractor.Kind != "marker" || cfg.Surrogate.Kind != "gp" || cfg.Acquisition.Kind != "ei" {
		t.Errorf("unexpected component defaults: %+v %+v %+v", cfg.Extractor, cfg.Surrogate, cfg.Acquisition)
	}
	if cfg.Seed != nil {
		t.Errorf("expected no seed, got %d", *cfg.Seed)
	}
	if cfg.StopPredicates() != nil {
		t.Errorf("expected no stop predicates")
	}
}

func TestParseRunConfigGridResolutionDefault(t *testing.T) {
	cfg, err := ParseRunConfigYAMLString(minimalYAML + "initial_design: {strategy: grid}\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.InitialDesign.Resolution != defaultGridResolution {
		t.Fatalf("expected resolution %d, got %d", defaultGridResolution, cfg.InitialDesign.Resolution)
	}
}

func TestParseRunConfigTimeBudgetOnly(t *testing.T) {
	yamlText := strings.Replace(minimalYAML, "iterations: 5", "time_budget: 90s", 1)
	cfg, err := ParseRunConfigYAMLString(yamlText)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := cfg.Budget()
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	if b.Iterations != 0 || b.Time.Seconds() != 90 {
		t.Fatalf("unexpected budget %+v", b)
	}
}

func TestParseRunConfigRejectsUnknownKeys(t *testing.T) {
	_, err := ParseRunConfigYAMLString(minimalYAML + "eval: os.system('rm -rf /')\n")
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
	if !strings.Contains(err.Error(), "eval") {
		t.Errorf("error should name the unknown key: %v", err)
	}
}

func TestParseRunConfigEmpty(t *testing.T) {
	if _, err := ParseRunConfigYAMLString(""); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestParseRunConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no budget",
			yaml:    strings.Replace(minimalYAML, "iterations: 5", "", 1),
			wantErr: "iterations or time_budget",
		},
		{
			name:    "negative iterations",
			yaml:    strings.Replace(minimalYAML, "iterations: 5", "iterations: -1", 1),
			wantErr: "iterations cannot be negative",
		},
		{
			name:    "bad time budget",
			yaml:    minimalYAML + "time_budget: soon\n",
			wantErr: "invalid time_budget",
		},
		{
			name:    "bad log level",
			yaml:    minimalYAML + "log_level: verbose\n",
			wantErr: "invalid log_level",
		},
		{
			name:    "bad direction",
			yaml:    minimalYAML + "direction: sideways\n",
			wantErr: "invalid direction",
		},
		{
			name:    "negative parallelism",
			yaml:    minimalYAML + "parallelism: -2\n",
			wantErr: "parallelism",
		},
		{
			name:    "bad strategy",
			yaml:    minimalYAML + "initial_design: {strategy: sobol}\n",
			wantErr: "invalid strategy",
		},
		{
			name: "no parameters",
			yaml: `
iterations: 5
parameters: []
command: {program: ./objective}
`,
			wantErr: "at least one parameter",
		},
		{
			name: "duplicate parameter",
			yaml: `
iterations: 5
parameters:
  - {name: x, kind: continuous, lower: 0, upper: 1}
  - {name: x, kind: integer, lower: 0, upper: 3}
command: {program: ./objective}
`,
			wantErr: "duplicate parameter name",
		},
		{
			name: "missing bounds",
			yaml: `
iterations: 5
parameters:
  - {name: x, kind: continuous, lower: 0}
command: {program: ./objective}
`,
			wantErr: "lower and upper are required",
		},
		{
			name: "inverted bounds",
			yaml: `
iterations: 5
parameters:
  - {name: x, kind: continuous, lower: 2, upper: 1}
command: {program: ./objective}
`,
			wantErr: "exceeds upper bound",
		},
		{
			name: "categorical without values",
			yaml: `
iterations: 5
parameters:
  - {name: c, kind: categorical}
command: {program: ./objective}
`,
			wantErr: "values are required",
		},
		{
			name: "unknown kind",
			yaml: `
iterations: 5
parameters:
  - {name: x, kind: complex, lower: 0, upper: 1}
command: {program: ./objective}
`,
			wantErr: "invalid kind",
		},
		{
			name: "missing program",
			yaml: `
iterations: 5
parameters:
  - {name: x, kind: continuous, lower: 0, upper: 1}
command: {args: ["{x}"]}
`,
			wantErr: "program cannot be empty",
		},
		{
			name:    "bad timeout",
			yaml:    strings.Replace(minimalYAML, "program: ./objective", "program: ./objective\n  timeout: forever", 1),
			wantErr: "invalid timeout",
		},
		{
			name:    "tagvalue without field",
			yaml:    minimalYAML + "extractor: {kind: tagvalue}\n",
			wantErr: "requires a field",
		},
		{
			name:    "unknown surrogate",
			yaml:    minimalYAML + "surrogate: {kind: forest}\n",
			wantErr: "surrogate validation failed",
		},
		{
			name:    "unknown acquisition",
			yaml:    minimalYAML + "acquisition: {kind: thompson}\n",
			wantErr: "acquisition validation failed",
		},
		{
			name:    "negative xi",
			yaml:    minimalYAML + "acquisition: {kind: ei, xi: -0.1}\n",
			wantErr: "xi cannot be negative",
		},
		{
			name:    "negative no_improvement",
			yaml:    minimalYAML + "stopping: {no_improvement: -1}\n",
			wantErr: "no_improvement cannot be negative",
		},
		{
			name:    "plateau window of one",
			yaml:    minimalYAML + "stopping: {plateau_window: 1}\n",
			wantErr: "plateau_window must be at least 2",
		},
		{
			name:    "negative plateau tolerance",
			yaml:    minimalYAML + "stopping: {plateau_window: 3, plateau_tolerance: -0.1}\n",
			wantErr: "plateau_tolerance cannot be negative",
		},
		{
			name:    "empty export path",
			yaml:    minimalYAML + "export: {history: true}\n",
			wantErr: "export path cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRunConfigYAMLString(tt.yaml)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRunConfigMarshalRoundTrip(t *testing.T) {
	cfg, err := ParseRunConfigYAMLString(minimalYAML + "seed: 3\nstopping: {target: 0}\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := ParseRunConfigYAML(data)
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, data)
	}
	if again.Seed == nil || *again.Seed != 3 {
		t.Errorf("seed lost: %v", again.Seed)
	}
	if again.Stopping == nil || again.Stopping.Target == nil || *again.Stopping.Target != 0 {
		t.Errorf("zero target lost: %+v", again.Stopping)
	}
}

func TestStopPredicatesPlateau(t *testing.T) {
	cfg, err := ParseRunConfigYAMLString(minimalYAML + "stopping: {plateau_window: 4, plateau_tolerance: 0.01}\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	preds := cfg.StopPredicates()
	if len(preds) != 1 {
		t.Fatalf("expected 1 stop predicate, got %d", len(preds))
	}
	plateau, ok := preds[0].(smbo.PlateauStrategy)
	if !ok {
		t.Fatalf("expected PlateauStrategy, got %T", preds[0])
	}
	if plateau.Window != 4 || plateau.Tolerance != 0.01 {
		t.Errorf("unexpected plateau %+v", plateau)
	}
}

func TestValidateAfterOverride(t *testing.T) {
	cfg, err := ParseRunConfigYAMLString(minimalYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected parsed config to validate: %v", err)
	}
	cfg.LogLevel = "verbose"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "invalid log_level") {
		t.Fatalf("expected invalid log_level error, got %v", err)
	}
}
