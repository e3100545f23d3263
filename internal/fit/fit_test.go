package fit

import (
	"errors"
	"math"
	"testing"
)

func TestLinearFit(t *testing.T) {
	// y = 2x + 3 with exact observations.
	xs := []float64{0, 1, 2, 3, 4}
	f := func(p []float64) ([]float64, error) {
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = p[0]*x + p[1] - (2*x + 3)
		}
		return out, nil
	}

	res, err := LeastSq(f, []float64{0, 0}, Options{Eps: 1e-12, Stop: 1e-14})
	if err != nil {
		t.Fatalf("LeastSq: %v", err)
	}
	if !res.Successful {
		t.Fatalf("not converged: %s (error=%v)", res.Message, res.Error)
	}
	if math.Abs(res.Params[0]-2) > 1e-6 || math.Abs(res.Params[1]-3) > 1e-6 {
		t.Fatalf("params = %v", res.Params)
	}
}

func TestNonlinearFit(t *testing.T) {
	// Recover an exponential decay a*exp(-b*x) from exact samples.
	xs := []float64{0, 0.5, 1, 1.5, 2}
	truth := []float64{3.0, 1.2}
	obs := make([]float64, len(xs))
	for i, x := range xs {
		obs[i] = truth[0] * math.Exp(-truth[1]*x)
	}
	f := func(p []float64) ([]float64, error) {
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = p[0]*math.Exp(-p[1]*x) - obs[i]
		}
		return out, nil
	}

	res, err := LeastSq(f, []float64{1, 1}, Options{
		Step:    1e-6,
		MaxIter: 50,
		Eps:     1e-10,
		Stop:    1e-14,
	})
	if err != nil {
		t.Fatalf("LeastSq: %v", err)
	}
	if !res.Successful {
		t.Fatalf("not converged after %d iterations: %s (error=%v)",
			res.Iterations, res.Message, res.Error)
	}
	if math.Abs(res.Params[0]-truth[0]) > 1e-4 || math.Abs(res.Params[1]-truth[1]) > 1e-4 {
		t.Fatalf("params = %v, want %v", res.Params, truth)
	}
}

func TestSingularSystem(t *testing.T) {
	// Two parameters that only ever appear as a sum cannot be
	// separated.
	f := func(p []float64) ([]float64, error) {
		return []float64{p[0] + p[1] - 5, 2 * (p[0] + p[1] - 5)}, nil
	}
	res, err := LeastSq(f, []float64{0, 0}, Options{Eps: 1e-12})
	if err != nil {
		t.Fatalf("LeastSq: %v", err)
	}
	if res.Successful || res.Message != "singular matrix" {
		t.Fatalf("result = %+v", res)
	}
}

func TestResidualError(t *testing.T) {
	boom := errors.New("boom")
	f := func(p []float64) ([]float64, error) { return nil, boom }
	if _, err := LeastSq(f, []float64{1}, Options{}); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped boom", err)
	}
}

func TestIterationLimit(t *testing.T) {
	f := func(p []float64) ([]float64, error) {
		return []float64{math.Atan(p[0]) - 1.5, p[0] * 1e-3}, nil
	}
	res, err := LeastSq(f, []float64{0}, Options{MaxIter: 1, Eps: 1e-12, Stop: 1e-16})
	if err != nil {
		t.Fatalf("LeastSq: %v", err)
	}
	if res.Successful {
		t.Fatal("expected iteration limit, got convergence")
	}
	if res.Message != "iteration exceeded" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestStopOnStall(t *testing.T) {
	// One residual the parameter can zero out, one it can never touch.
	// The error settles at the constant part and stalls.
	f := func(p []float64) ([]float64, error) {
		return []float64{p[0]*0.001 - 1, 1}, nil
	}
	res, err := LeastSq(f, []float64{0}, Options{Eps: 1e-12, Stop: 1e-6, MaxIter: 20})
	if err != nil {
		t.Fatalf("LeastSq: %v", err)
	}
	if res.Successful || res.Message != "too small change" {
		t.Fatalf("result = %+v", res)
	}
}

func TestPerParameterSteps(t *testing.T) {
	f := func(p []float64) ([]float64, error) {
		return []float64{p[0] - 1, p[1] - 2}, nil
	}
	res, err := LeastSq(f, []float64{0, 0}, Options{
		Steps: []float64{1e-4, 1e-5},
		Eps:   1e-10,
	})
	if err != nil {
		t.Fatalf("LeastSq: %v", err)
	}
	if !res.Successful {
		t.Fatalf("not converged: %s", res.Message)
	}

	if _, err := LeastSq(f, []float64{0, 0}, Options{Steps: []float64{1e-4}}); err == nil {
		t.Fatal("expected step length mismatch error")
	}
}
