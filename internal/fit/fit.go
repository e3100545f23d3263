// Package fit implements iterative least squares with Gauss-Newton
// updates for the small nonlinear problems the camera model produces.
// Jacobians are estimated with forward finite differences, so callers
// only supply a residual function.
package fit

import (
	"errors"
	"fmt"
	"math"
)

// Residuals evaluates the residual vector at a parameter point. The
// returned slice must have the same length on every call.
type Residuals func(params []float64) ([]float64, error)

// Options tunes the solver. Zero values select the defaults.
type Options struct {
	// Step is the finite-difference step applied to every parameter
	// (default 1e-3). Ignored when Steps is set.
	Step float64
	// Steps gives a per-parameter finite-difference step. When set it
	// must have the same length as the parameter vector.
	Steps []float64
	// MaxIter caps the number of Gauss-Newton iterations (default 10).
	MaxIter int
	// Eps is the success threshold on the sum of squared residuals
	// (default 1e-3).
	Eps float64
	// Stop terminates the fit when the error changes less than this
	// between iterations (default 1e-3).
	Stop float64
}

// Result reports the outcome of a solve. Successful is only set when
// the error dropped below the eps threshold.
type Result struct {
	Successful bool
	Message    string
	Iterations int
	Params     []float64
	// Error is the sum of squared residuals at the last iteration.
	Error float64
}

func (o Options) withDefaults(n int) (Options, error) {
	if o.Step <= 0 {
		o.Step = 1e-3
	}
	if o.Steps == nil {
		o.Steps = make([]float64, n)
		for i := range o.Steps {
			o.Steps[i] = o.Step
		}
	} else if len(o.Steps) != n {
		return o, fmt.Errorf("got %d steps for %d parameters", len(o.Steps), n)
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 10
	}
	if o.Eps <= 0 {
		o.Eps = 1e-3
	}
	if o.Stop <= 0 {
		o.Stop = 1e-3
	}
	return o, nil
}

// LeastSq fits parameters by minimizing the sum of squared residuals
// starting from initial. The initial slice is not modified. The error
// return covers failures to evaluate residuals; a fit that merely did
// not converge comes back with Successful false and a Message.
func LeastSq(f Residuals, initial []float64, opts Options) (Result, error) {
	n := len(initial)
	if n == 0 {
		return Result{}, errors.New("no parameters to fit")
	}
	opts, err := opts.withDefaults(n)
	if err != nil {
		return Result{}, err
	}

	params := make([]float64, n)
	copy(params, initial)

	latest := math.MaxFloat64
	var errSum float64
	for iter := 0; iter < opts.MaxIter; iter++ {
		r, err := f(params)
		if err != nil {
			return result(false, "residuals failed", iter, params, errSum), fmt.Errorf("residuals: %w", err)
		}
		if len(r) < n {
			return result(false, "underdetermined", iter, params, errSum),
				fmt.Errorf("underdetermined: %d residuals for %d parameters", len(r), n)
		}
		errSum = sumSquares(r)

		if errSum < opts.Eps {
			return result(true, "less than eps threshold", iter, params, errSum), nil
		}
		if math.Abs(latest-errSum) < opts.Stop {
			return result(false, "too small change", iter, params, errSum), nil
		}

		jac, err := jacobian(f, params, r, opts.Steps)
		if err != nil {
			return result(false, "jacobian failed", iter, params, errSum), err
		}

		delta, ok := normalSolve(jac, r)
		if !ok {
			return result(false, "singular matrix", iter, params, errSum), nil
		}
		for i := range params {
			params[i] -= delta[i]
		}

		latest = errSum
	}

	return result(false, "iteration exceeded", opts.MaxIter, params, latest), nil
}

func result(ok bool, msg string, iter int, params []float64, errSum float64) Result {
	out := make([]float64, len(params))
	copy(out, params)
	return Result{Successful: ok, Message: msg, Iterations: iter, Params: out, Error: errSum}
}

func jacobian(f Residuals, params, r0 []float64, steps []float64) ([][]float64, error) {
	m, n := len(r0), len(params)
	jac := make([][]float64, m)
	for i := range jac {
		jac[i] = make([]float64, n)
	}
	probe := make([]float64, n)
	for j := 0; j < n; j++ {
		copy(probe, params)
		probe[j] += steps[j]
		r1, err := f(probe)
		if err != nil {
			return nil, fmt.Errorf("residuals: %w", err)
		}
		if len(r1) != m {
			return nil, errors.New("residual length changed between calls")
		}
		for i := 0; i < m; i++ {
			jac[i][j] = (r1[i] - r0[i]) / steps[j]
		}
	}
	return jac, nil
}

// normalSolve solves (J^T J) x = J^T r by Gaussian elimination with
// partial pivoting. A vanishing pivot marks the system singular.
func normalSolve(jac [][]float64, r []float64) ([]float64, bool) {
	n := len(jac[0])
	a := make([][]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			var s float64
			for k := range jac {
				s += jac[k][i] * jac[k][j]
			}
			a[i][j] = s
		}
		var s float64
		for k := range jac {
			s += jac[k][i] * r[k]
		}
		b[i] = s
	}

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		s := b[row]
		for k := row + 1; k < n; k++ {
			s -= a[row][k] * x[k]
		}
		x[row] = s / a[row][row]
	}
	return x, true
}

func sumSquares(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}
