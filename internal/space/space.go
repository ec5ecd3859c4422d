// Package space describes the domain searched by the optimizer: an ordered
// set of named parameters, points inside it, and the fixed numeric encoding
// the surrogate and infill search work on.
//
// Encoding: a point becomes a vector with one coordinate per parameter in
// declaration order. Continuous and integer values are used as-is; a
// categorical value is encoded as the index of the value in its declared
// list. The index scheme is fixed; one-hot encoding is not used.
package space

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Point maps parameter names to values. Continuous values are float64,
// integer values int and categorical values string.
type Point map[string]any

// Clone returns a shallow copy of the point.
func (p Point) Clone() Point {
	out := make(Point, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Space is an immutable ordered set of uniquely named parameters.
type Space struct {
	params []Parameter
	index  map[string]int
}

// New validates the parameter declarations and builds a Space.
func New(params ...Parameter) (*Space, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("space must have at least one parameter")
	}
	s := &Space{
		params: make([]Parameter, len(params)),
		index:  make(map[string]int, len(params)),
	}
	for i, p := range params {
		if err := p.check(); err != nil {
			return nil, err
		}
		if _, dup := s.index[p.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter name: %s", p.Name)
		}
		p.Values = append([]string(nil), p.Values...)
		s.params[i] = p
		s.index[p.Name] = i
	}
	return s, nil
}

// MustNew is New that panics on error, for static declarations and tests.
func MustNew(params ...Parameter) *Space {
	s, err := New(params...)
	if err != nil {
		panic(err)
	}
	return s
}

// Dim returns the number of parameters.
func (s *Space) Dim() int {
	return len(s.params)
}

// Parameters returns a copy of the parameter declarations in order.
func (s *Space) Parameters() []Parameter {
	out := make([]Parameter, len(s.params))
	copy(out, s.params)
	return out
}

// Parameter looks up a parameter by name.
func (s *Space) Parameter(name string) (Parameter, bool) {
	i, ok := s.index[name]
	if !ok {
		return Parameter{}, false
	}
	return s.params[i], true
}

// Validate returns a *DomainError if the point has an unknown or missing
// parameter, or a value outside its parameter's domain.
func (s *Space) Validate(p Point) error {
	_, err := s.Encode(p)
	return err
}

// IsValid reports whether Validate accepts the point.
func (s *Space) IsValid(p Point) bool {
	return s.Validate(p) == nil
}

// Encode converts a point into its fixed-order numeric vector.
func (s *Space) Encode(p Point) ([]float64, error) {
	for name := range p {
		if _, ok := s.index[name]; !ok {
			return nil, domainErr(name, nil, "unknown parameter")
		}
	}
	x := make([]float64, len(s.params))
	for i, param := range s.params {
		v, ok := p[param.Name]
		if !ok {
			return nil, domainErr(param.Name, nil, "missing value")
		}
		c, err := param.encode(v)
		if err != nil {
			return nil, err
		}
		x[i] = c
	}
	return x, nil
}

// Decode converts a numeric vector back into a point. Discrete coordinates
// are rounded; any coordinate outside its range is a *DomainError.
func (s *Space) Decode(x []float64) (Point, error) {
	if len(x) != len(s.params) {
		return nil, &DomainError{Reason: fmt.Sprintf("vector has %d coordinates, space has %d parameters", len(x), len(s.params))}
	}
	p := make(Point, len(s.params))
	for i, param := range s.params {
		v, err := param.decode(x[i])
		if err != nil {
			return nil, err
		}
		p[param.Name] = v
	}
	return p, nil
}

// Snap clamps every coordinate into range and rounds discrete ones, so the
// result always decodes.
func (s *Space) Snap(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, param := range s.params {
		out[i] = param.snap(x[i])
	}
	return out
}

// Normalize maps an encoded vector into the unit cube. Degenerate ranges map
// to 0.5.
func (s *Space) Normalize(x []float64) []float64 {
	u := make([]float64, len(x))
	for i, param := range s.params {
		lo, hi := param.bounds()
		if hi == lo {
			u[i] = 0.5
			continue
		}
		u[i] = (x[i] - lo) / (hi - lo)
	}
	return u
}

// Denormalize maps a unit-cube vector back to encoded coordinates and snaps
// it into the space.
func (s *Space) Denormalize(u []float64) []float64 {
	x := make([]float64, len(u))
	for i, param := range s.params {
		lo, hi := param.bounds()
		x[i] = lo + u[i]*(hi-lo)
	}
	return s.Snap(x)
}

// Cardinality returns the number of distinct points, or ok=false when any
// parameter is continuous. Products beyond math.MaxInt saturate.
func (s *Space) Cardinality() (n int, ok bool) {
	n = 1
	for _, p := range s.params {
		c, finite := p.Cardinality()
		if !finite {
			return 0, false
		}
		if c > 0 && n > math.MaxInt/c {
			return math.MaxInt, true
		}
		n *= c
	}
	return n, true
}

// Format renders a point as "name=value" pairs in parameter order.
func (s *Space) Format(p Point) string {
	parts := make([]string, 0, len(p))
	for _, param := range s.params {
		if v, ok := p[param.Name]; ok {
			parts = append(parts, param.Name+"="+param.FormatValue(v))
		}
	}
	// names outside the space are rendered last, sorted
	var extra []string
	for name, v := range p {
		if _, ok := s.index[name]; !ok {
			extra = append(extra, fmt.Sprintf("%s=%v", name, v))
		}
	}
	sort.Strings(extra)
	return strings.Join(append(parts, extra...), " ")
}
