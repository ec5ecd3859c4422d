package harness

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/GoSim-25-26J-441/smbo/internal/space"
)

// Placeholders substituted in command arguments besides parameter names.
const (
	PlaceholderOutput = "output"
	PlaceholderID     = "id"
)

// Environment variables exported to every invocation.
const (
	EnvEvalID = "SMBO_EVAL_ID"
	EnvOutput = "SMBO_OUTPUT"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// Command is the template of an external program invocation.
//
// Each element of Args may contain placeholders: {name} is replaced by the
// formatted value of parameter name, {output} by the artifact path and {id}
// by the invocation identity. When Args is empty the parameter values are
// passed positionally in space order. When no argument references {output}
// the program's standard output is written to the artifact path by the
// harness.
type Command struct {
	Program string
	Args    []string
	Env     map[string]string
	Dir     string
}

// validate checks that every placeholder names a parameter or a built-in.
func (c Command) validate(s *space.Space) error {
	if strings.TrimSpace(c.Program) == "" {
		return fmt.Errorf("command program is required")
	}
	for _, arg := range c.Args {
		for _, m := range placeholderRe.FindAllStringSubmatch(arg, -1) {
			name := m[1]
			if name == PlaceholderOutput || name == PlaceholderID {
				continue
			}
			if _, ok := s.Parameter(name); !ok {
				return fmt.Errorf("command argument %q references unknown parameter %q", arg, name)
			}
		}
	}
	return nil
}

// writesOutput reports whether the program is told where to write its
// artifact.
func (c Command) writesOutput() bool {
	for _, arg := range c.Args {
		if strings.Contains(arg, "{"+PlaceholderOutput+"}") {
			return true
		}
	}
	return false
}

// render produces the argument vector for one invocation.
func (c Command) render(s *space.Space, p space.Point, id Identity, artifact string) []string {
	if len(c.Args) == 0 {
		args := make([]string, 0, s.Dim())
		for _, param := range s.Parameters() {
			args = append(args, param.FormatValue(p[param.Name]))
		}
		return args
	}

	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = placeholderRe.ReplaceAllStringFunc(arg, func(tok string) string {
			name := tok[1 : len(tok)-1]
			switch name {
			case PlaceholderOutput:
				return artifact
			case PlaceholderID:
				return id.String()
			}
			param, ok := s.Parameter(name)
			if !ok {
				return tok
			}
			return param.FormatValue(p[name])
		})
	}
	return args
}

// environ returns the extra environment entries in a stable order.
func (c Command) environ(id Identity, artifact string) []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return append(env, EnvEvalID+"="+id.String(), EnvOutput+"="+artifact)
}
