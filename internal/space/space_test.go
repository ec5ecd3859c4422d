package space

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

func mixedSpace(t *testing.T) *Space {
	t.Helper()
	s, err := New(
		Continuous("x", -3, 3),
		Integer("n", 1, 8),
		Categorical("algo", "sgd", "adam", "lbfgs"),
	)
	require.NoError(t, err)
	return s
}

func TestNewRejectsInvalidDeclarations(t *testing.T) {
	tests := []struct {
		name   string
		params []Parameter
	}{
		{"no parameters", nil},
		{"empty name", []Parameter{Continuous("", 0, 1)}},
		{"inverted bounds", []Parameter{Continuous("x", 2, 1)}},
		{"fractional integer bounds", []Parameter{{Name: "n", Kind: KindInteger, Lower: 0.5, Upper: 3}}},
		{"empty categorical", []Parameter{Categorical("c")}},
		{"duplicate category", []Parameter{Categorical("c", "a", "a")}},
		{"duplicate name", []Parameter{Continuous("x", 0, 1), Integer("x", 0, 1)}},
		{"unknown kind", []Parameter{{Name: "x", Kind: "complex"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params...)
			assert.Error(t, err)
		})
	}
}

func TestNewAcceptsDegenerateRange(t *testing.T) {
	s, err := New(Continuous("x", 1, 1))
	require.NoError(t, err)
	assert.True(t, s.IsValid(Point{"x": 1.0}))
}

func TestValidateRejectsOutOfDomain(t *testing.T) {
	s := mixedSpace(t)
	valid := Point{"x": 0.5, "n": 3, "algo": "adam"}
	require.NoError(t, s.Validate(valid))

	tests := []struct {
		name  string
		point Point
		param string
	}{
		{"continuous above upper", Point{"x": 3.01, "n": 3, "algo": "adam"}, "x"},
		{"continuous below lower", Point{"x": -4.0, "n": 3, "algo": "adam"}, "x"},
		{"integer above upper", Point{"x": 0.0, "n": 9, "algo": "adam"}, "n"},
		{"integer fractional", Point{"x": 0.0, "n": 2.5, "algo": "adam"}, "n"},
		{"unknown category", Point{"x": 0.0, "n": 3, "algo": "rmsprop"}, "algo"},
		{"category wrong type", Point{"x": 0.0, "n": 3, "algo": 1}, "algo"},
		{"unknown parameter", Point{"x": 0.0, "n": 3, "algo": "adam", "y": 1.0}, "y"},
		{"missing parameter", Point{"x": 0.0, "algo": "adam"}, "n"},
		{"non numeric", Point{"x": "zero", "n": 3, "algo": "adam"}, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.point)
			require.Error(t, err)
			var de *DomainError
			require.True(t, errors.As(err, &de), "expected DomainError, got %T", err)
			assert.Equal(t, tt.param, de.Param)
			assert.False(t, s.IsValid(tt.point))
		})
	}
}

func TestEncodeUsesCategoryIndex(t *testing.T) {
	s := mixedSpace(t)
	x, err := s.Encode(Point{"x": 1.5, "n": 4, "algo": "lbfgs"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 4, 2}, x)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := mixedSpace(t)
	rng := utils.NewRandSource(11)
	points, err := s.Sample(200, Uniform{}, rng)
	require.NoError(t, err)

	for _, p := range points {
		x, err := s.Encode(p)
		require.NoError(t, err)
		decoded, err := s.Decode(x)
		require.NoError(t, err)
		again, err := s.Encode(decoded)
		require.NoError(t, err)
		assert.Equal(t, x, again)
	}
}

func TestDecodeRejectsBadVectors(t *testing.T) {
	s := mixedSpace(t)
	_, err := s.Decode([]float64{0, 1})
	assert.Error(t, err)

	_, err = s.Decode([]float64{0, 1, 3})
	var de *DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "algo", de.Param)

	_, err = s.Decode([]float64{5, 1, 0})
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "x", de.Param)
}

func TestDecodeRoundsDiscreteCoordinates(t *testing.T) {
	s := mixedSpace(t)
	p, err := s.Decode([]float64{0.25, 3.4, 1.6})
	require.NoError(t, err)
	assert.Equal(t, Point{"x": 0.25, "n": 3, "algo": "lbfgs"}, p)
}

func TestSnapAndNormalize(t *testing.T) {
	s := mixedSpace(t)
	snapped := s.Snap([]float64{10, 0, -1})
	assert.Equal(t, []float64{3, 1, 0}, snapped)

	u := s.Normalize([]float64{0, 8, 1})
	assert.InDeltaSlice(t, []float64{0.5, 1, 0.5}, u, 1e-12)

	x := s.Denormalize([]float64{0, 0.5, 1})
	assert.InDeltaSlice(t, []float64{-3, 5, 2}, x, 1e-12)
}

func TestCardinality(t *testing.T) {
	_, ok := mixedSpace(t).Cardinality()
	assert.False(t, ok)

	s := MustNew(Integer("n", 1, 4), Categorical("c", "a", "b"))
	n, ok := s.Cardinality()
	assert.True(t, ok)
	assert.Equal(t, 8, n)
}

func TestFormat(t *testing.T) {
	s := mixedSpace(t)
	got := s.Format(Point{"algo": "sgd", "x": 0.5, "n": 2})
	assert.Equal(t, "x=0.5 n=2 algo=sgd", got)
}

func TestParameterAccessors(t *testing.T) {
	s := mixedSpace(t)
	assert.Equal(t, 3, s.Dim())
	p, ok := s.Parameter("n")
	require.True(t, ok)
	assert.Equal(t, KindInteger, p.Kind)
	_, ok = s.Parameter("missing")
	assert.False(t, ok)

	params := s.Parameters()
	params[0].Name = "mutated"
	_, ok = s.Parameter("x")
	assert.True(t, ok, "Parameters must return a copy")
}
