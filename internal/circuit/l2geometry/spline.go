package l2geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Penalty search range (log10 of the roughness weight, in sample units).
const (
	logLambdaMin     = -6.0
	logLambdaMax     = 12.0
	lambdaIterations = 48
)

// errFactorize is returned when the banded system is not positive definite.
var errFactorize = errors.New("smoothing spline: band Cholesky factorisation failed")

// SmoothingSpline is a natural cubic smoothing spline with a knot at every
// sample of a uniform grid. It minimises the integral of the squared second
// derivative subject to a residual sum of squares of at most the smoothing
// target, following Reinsch (1967). Only knot values and knot derivatives are
// exposed; that is all the curvature computation needs.
type SmoothingSpline struct {
	step   float64
	lambda float64
	rss    float64
	g      []float64 // fitted values at the knots
	c      []float64 // second derivatives (per sample²) at the knots
}

// FitSmoothingSpline fits y sampled every step metres so that the residual
// sum of squares does not exceed s. When even the straight-line limit
// stays within s the spline degenerates to a least-squares line.
func FitSmoothingSpline(y []float64, step, s float64) (*SmoothingSpline, error) {
	n := len(y)
	if n < 3 {
		return nil, fmt.Errorf("smoothing spline needs at least 3 samples, got %d", n)
	}
	if step <= 0 {
		return nil, fmt.Errorf("smoothing spline step must be positive, got %f", step)
	}
	if s < 0 {
		s = 0
	}

	sp := &SmoothingSpline{step: step}
	fitAt := func(logLambda float64) error {
		lambda := math.Pow(10, logLambda)
		g, c, rss, err := solveReinsch(y, lambda)
		if err != nil {
			return err
		}
		sp.lambda, sp.g, sp.c, sp.rss = lambda, g, c, rss
		return nil
	}

	// RSS grows monotonically with lambda; bisect for RSS(lambda) = s.
	if err := fitAt(logLambdaMax); err != nil {
		return nil, err
	}
	if sp.rss <= s {
		return sp, nil
	}
	if err := fitAt(logLambdaMin); err != nil {
		return nil, err
	}
	if sp.rss >= s {
		return sp, nil
	}
	lo, hi := logLambdaMin, logLambdaMax
	for i := 0; i < lambdaIterations; i++ {
		mid := 0.5 * (lo + hi)
		if err := fitAt(mid); err != nil {
			return nil, err
		}
		if sp.rss > s {
			hi = mid
		} else {
			lo = mid
		}
	}
	// Settle on the smoothest fit that honours the target.
	if err := fitAt(lo); err != nil {
		return nil, err
	}
	return sp, nil
}

// solveReinsch solves (R + λ QᵀQ) γ = Qᵀ y on a unit grid and returns the
// fitted values, knot second derivatives and residual sum of squares.
func solveReinsch(y []float64, lambda float64) (g, c []float64, rss float64, err error) {
	n := len(y)
	m := n - 2
	k := 2
	if m-1 < k {
		k = m - 1
	}

	a := mat.NewSymBandDense(m, k, nil)
	for j := 0; j < m; j++ {
		a.SetSymBand(j, j, 2.0/3.0+6*lambda)
		if k >= 1 && j+1 < m {
			a.SetSymBand(j, j+1, 1.0/6.0-4*lambda)
		}
		if k >= 2 && j+2 < m {
			a.SetSymBand(j, j+2, lambda)
		}
	}
	b := mat.NewVecDense(m, nil)
	for j := 0; j < m; j++ {
		b.SetVec(j, y[j]-2*y[j+1]+y[j+2])
	}

	var chol mat.BandCholesky
	if ok := chol.Factorize(a); !ok {
		return nil, nil, 0, errFactorize
	}
	var gamma mat.VecDense
	if err := chol.SolveVecTo(&gamma, b); err != nil {
		return nil, nil, 0, fmt.Errorf("smoothing spline solve: %w", err)
	}

	gammaAt := func(j int) float64 {
		if j < 0 || j >= m {
			return 0
		}
		return gamma.AtVec(j)
	}

	g = make([]float64, n)
	c = make([]float64, n)
	for i := 0; i < n; i++ {
		q := gammaAt(i) - 2*gammaAt(i-1) + gammaAt(i-2)
		r := lambda * q
		g[i] = y[i] - r
		rss += r * r
		if i > 0 && i < n-1 {
			c[i] = gammaAt(i - 1)
		}
	}
	return g, c, rss, nil
}

// Values returns the fitted values at the knots.
func (sp *SmoothingSpline) Values() []float64 {
	out := make([]float64, len(sp.g))
	copy(out, sp.g)
	return out
}

// RSS returns the residual sum of squares of the fit.
func (sp *SmoothingSpline) RSS() float64 { return sp.rss }

// Lambda returns the roughness weight chosen by the search (sample units).
func (sp *SmoothingSpline) Lambda() float64 { return sp.lambda }

// Derivatives returns the first and second derivatives with respect to
// distance at every knot.
func (sp *SmoothingSpline) Derivatives() (d1, d2 []float64) {
	n := len(sp.g)
	d1 = make([]float64, n)
	d2 = make([]float64, n)
	h := sp.step
	for i := 0; i < n; i++ {
		var slope float64
		if i < n-1 {
			slope = (sp.g[i+1] - sp.g[i]) - (2*sp.c[i]+sp.c[i+1])/6
		} else {
			slope = (sp.g[i] - sp.g[i-1]) + (sp.c[i-1]+2*sp.c[i])/6
		}
		d1[i] = slope / h
		d2[i] = sp.c[i] / (h * h)
	}
	return d1, d2
}
