package analytics

import (
	"gonum.org/v1/gonum/mat"

	apperrors "quantfolio/internal/errors"
)

// regEpsilon is the Tikhonov damping added to the diagonal when a direct
// solve hits a numerically singular matrix.
const regEpsilon = 1e-8

// solveRegularized solves A x = b. On numerical singularity it retries once
// with regEpsilon added to the diagonal of A; a second failure is fatal for
// the call. Shared by the tangency solver and the alpha/beta regression.
func solveRegularized(a mat.Symmetric, b []float64) ([]float64, error) {
	n := len(b)
	bVec := mat.NewVecDense(n, b)

	var x mat.VecDense
	if err := x.SolveVec(a, bVec); err == nil {
		return x.RawVector().Data, nil
	}

	damped := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			damped.SetSym(i, j, a.At(i, j))
		}
		damped.SetSym(i, i, a.At(i, i)+regEpsilon)
	}

	if err := x.SolveVec(damped, bVec); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSingularMatrix,
			"matrix is singular even after regularization")
	}
	return x.RawVector().Data, nil
}
