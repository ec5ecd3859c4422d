package space

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the value domain of a parameter.
type Kind string

const (
	KindContinuous  Kind = "continuous"
	KindInteger     Kind = "integer"
	KindCategorical Kind = "categorical"
)

// Parameter is a single named dimension of a Space. Numeric kinds use
// Lower/Upper (inclusive); categorical uses Values.
type Parameter struct {
	Name   string
	Kind   Kind
	Lower  float64
	Upper  float64
	Values []string
}

// Continuous declares a real-valued parameter on [lo, hi].
func Continuous(name string, lo, hi float64) Parameter {
	return Parameter{Name: name, Kind: KindContinuous, Lower: lo, Upper: hi}
}

// Integer declares an integer parameter on [lo, hi].
func Integer(name string, lo, hi int) Parameter {
	return Parameter{Name: name, Kind: KindInteger, Lower: float64(lo), Upper: float64(hi)}
}

// Categorical declares a parameter taking one of values. The declaration
// order fixes each value's encoded index.
func Categorical(name string, values ...string) Parameter {
	return Parameter{Name: name, Kind: KindCategorical, Values: append([]string(nil), values...)}
}

func (p Parameter) check() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	switch p.Kind {
	case KindContinuous, KindInteger:
		if math.IsNaN(p.Lower) || math.IsNaN(p.Upper) || math.IsInf(p.Lower, 0) || math.IsInf(p.Upper, 0) {
			return fmt.Errorf("parameter %s: bounds must be finite", p.Name)
		}
		if p.Lower > p.Upper {
			return fmt.Errorf("parameter %s: lower bound %v exceeds upper bound %v", p.Name, p.Lower, p.Upper)
		}
		if p.Kind == KindInteger && (p.Lower != math.Trunc(p.Lower) || p.Upper != math.Trunc(p.Upper)) {
			return fmt.Errorf("parameter %s: integer bounds must be whole numbers", p.Name)
		}
	case KindCategorical:
		if len(p.Values) == 0 {
			return fmt.Errorf("parameter %s: categorical values cannot be empty", p.Name)
		}
		seen := make(map[string]bool, len(p.Values))
		for _, v := range p.Values {
			if seen[v] {
				return fmt.Errorf("parameter %s: duplicate categorical value %q", p.Name, v)
			}
			seen[v] = true
		}
	default:
		return fmt.Errorf("parameter %s: unknown kind %q", p.Name, p.Kind)
	}
	return nil
}

// Cardinality returns the number of distinct values, or ok=false for a
// continuous parameter.
func (p Parameter) Cardinality() (n int, ok bool) {
	switch p.Kind {
	case KindInteger:
		return int(p.Upper-p.Lower) + 1, true
	case KindCategorical:
		return len(p.Values), true
	default:
		return 0, false
	}
}

// encode maps a value of this parameter to its numeric coordinate.
func (p Parameter) encode(v any) (float64, error) {
	switch p.Kind {
	case KindCategorical:
		s, ok := v.(string)
		if !ok {
			return 0, domainErr(p.Name, v, "categorical value must be a string")
		}
		for i, c := range p.Values {
			if c == s {
				return float64(i), nil
			}
		}
		return 0, domainErr(p.Name, v, "unknown category")
	case KindInteger:
		x, ok := toFloat(v)
		if !ok {
			return 0, domainErr(p.Name, v, "integer value must be numeric")
		}
		if x != math.Trunc(x) {
			return 0, domainErr(p.Name, v, "value is not a whole number")
		}
		if x < p.Lower || x > p.Upper {
			return 0, domainErr(p.Name, v, "out of bounds [%v, %v]", p.Lower, p.Upper)
		}
		return x, nil
	default:
		x, ok := toFloat(v)
		if !ok {
			return 0, domainErr(p.Name, v, "continuous value must be numeric")
		}
		if math.IsNaN(x) || x < p.Lower || x > p.Upper {
			return 0, domainErr(p.Name, v, "out of bounds [%v, %v]", p.Lower, p.Upper)
		}
		return x, nil
	}
}

// decode maps a numeric coordinate back to a value. Coordinates of discrete
// kinds are rounded to the nearest index or integer first.
func (p Parameter) decode(x float64) (any, error) {
	if math.IsNaN(x) {
		return nil, domainErr(p.Name, x, "coordinate is NaN")
	}
	switch p.Kind {
	case KindCategorical:
		i := int(math.Round(x))
		if i < 0 || i >= len(p.Values) {
			return nil, domainErr(p.Name, x, "category index out of range [0, %d)", len(p.Values))
		}
		return p.Values[i], nil
	case KindInteger:
		r := math.Round(x)
		if r < p.Lower || r > p.Upper {
			return nil, domainErr(p.Name, x, "out of bounds [%v, %v]", p.Lower, p.Upper)
		}
		return int(r), nil
	default:
		if x < p.Lower || x > p.Upper {
			return nil, domainErr(p.Name, x, "out of bounds [%v, %v]", p.Lower, p.Upper)
		}
		return x, nil
	}
}

// bounds returns the coordinate range of the parameter.
func (p Parameter) bounds() (lo, hi float64) {
	if p.Kind == KindCategorical {
		return 0, float64(len(p.Values) - 1)
	}
	return p.Lower, p.Upper
}

// snap clamps a coordinate into range and rounds discrete kinds.
func (p Parameter) snap(x float64) float64 {
	lo, hi := p.bounds()
	if math.IsNaN(x) {
		x = lo
	}
	x = math.Max(lo, math.Min(hi, x))
	if p.Kind != KindContinuous {
		x = math.Round(x)
	}
	return x
}

// FormatValue renders a value the way it is passed on a command line.
func (p Parameter) FormatValue(v any) string {
	switch p.Kind {
	case KindCategorical:
		return fmt.Sprint(v)
	case KindInteger:
		x, _ := toFloat(v)
		return strconv.FormatInt(int64(x), 10)
	default:
		x, _ := toFloat(v)
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
