package domain

import (
	"errors"
	"math"
	"testing"
)

func TestNewEmbedding_Normalizes(t *testing.T) {
	inputs := [][]float32{
		{3, 4},
		{1, 0, 0, 0},
		{0.001, 0.002, 0.003},
		{12, -5, 7, 0.5, 100},
	}
	for _, in := range inputs {
		e, err := NewEmbedding(in)
		if err != nil {
			t.Fatalf("NewEmbedding(%v): %v", in, err)
		}
		if d := math.Abs(e.Norm() - 1); d > 1e-6 {
			t.Errorf("norm of %v = %v, want 1 within 1e-6", in, e.Norm())
		}
	}
}

func TestNewEmbedding_CopiesInput(t *testing.T) {
	in := []float32{1, 0}
	e, err := NewEmbedding(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in[0] = 42
	if e.At(0) != 1 {
		t.Errorf("embedding mutated through input slice: %v", e.Values())
	}

	out := e.Values()
	out[0] = 42
	if e.At(0) != 1 {
		t.Errorf("embedding mutated through Values(): %v", e.Values())
	}
}

func TestNewEmbedding_Rejects(t *testing.T) {
	cases := map[string][]float32{
		"empty": {},
		"zero":  {0, 0, 0},
		"nan":   {1, float32(math.NaN())},
		"inf":   {float32(math.Inf(1)), 0},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewEmbedding(in)
			if !errors.Is(err, ErrInvalidVector) {
				t.Errorf("expected ErrInvalidVector, got %v", err)
			}
		})
	}
}

func TestEmbedding_Dot(t *testing.T) {
	a := ReconstructEmbedding([]float32{1, 0, 0, 0})
	b := ReconstructEmbedding([]float32{0, 1, 0, 0})

	got, err := a.Dot(a)
	if err != nil || got != 1 {
		t.Errorf("a.a = %v, %v; want 1", got, err)
	}
	got, err = a.Dot(b)
	if err != nil || got != 0 {
		t.Errorf("a.b = %v, %v; want 0", got, err)
	}

	_, err = a.Dot(ReconstructEmbedding([]float32{1, 0}))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestCategorySet(t *testing.T) {
	set, err := NewCategorySet([]string{" Healthcare", "satellite"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Contains("healthcare") {
		t.Error("expected healthcare to be normalized into the set")
	}
	if err := set.Validate("surveillance"); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
	if names := set.Names(); len(names) != 2 || names[0] != "healthcare" {
		t.Errorf("unexpected names: %v", names)
	}

	if _, err := NewCategorySet([]string{"a", "A"}); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("expected duplicate rejection, got %v", err)
	}
	if _, err := NewCategorySet(nil); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("expected empty set rejection, got %v", err)
	}
}
