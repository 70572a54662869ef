package delta

import "math"

// Support is the half width of the kernel, in cells
const Support = 1.5

// Kernel is the discrete delta function of Roma, Peskin and Berger (1999) as a function of the
// distance in cell widths
func Kernel(r float64) float64 {
	r = math.Abs(r)
	switch {
	case r <= 0.5:
		return (1 + math.Sqrt(1-3*r*r)) / 3
	case r < 1.5:
		return (5 - 3*r - math.Sqrt(1-3*(1-r)*(1-r))) / 6
	default:
		return 0
	}
}

// RomaEtAl1999 is the one dimensional regularized delta for a distance dx on cells of width h
func RomaEtAl1999(dx, h float64) float64 {
	return Kernel(math.Abs(dx)/h) / h
}

// Weight is the tensor product kernel used for interpolation; it is dimensionless, the
// spreading weight divides it by the control volume of the mesh point
func Weight(dx, h []float64) (w float64) {
	w = 1
	for a := range dx {
		if w *= Kernel(dx[a] / h[a]); w == 0 {
			return
		}
	}
	return
}
