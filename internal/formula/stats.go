package formula

import (
	"math"

	"github.com/roach88/gridcalc/internal/value"
)

func registerStats(l *Library) {
	l.Register("NORMDIST", fnNormDist)
	l.Register("NORM.DIST", fnNormDist)
	l.Register("NORMINV", fnNormInv)
	l.Register("NORM.INV", fnNormInv)
}

// seriesLimit bounds |z| for the power series. Beyond it the series would
// need hundreds of terms and lose all precision to cancellation, so the
// complementary error function takes over.
const seriesLimit = 6

// NormCDF is the standard normal cumulative distribution, computed from the
// power series 0.5 + phi(z) * sum z^(2n+1) / (1*3*...*(2n+1)).
func NormCDF(z float64) float64 {
	if math.IsNaN(z) {
		return z
	}
	if math.Abs(z) > seriesLimit {
		return 0.5 * math.Erfc(-z/math.Sqrt2)
	}
	sum, term := z, z
	for n := 1; n < 500; n++ {
		term *= z * z / float64(2*n+1)
		sum += term
		if math.Abs(term) < 1e-17*math.Abs(sum) {
			break
		}
	}
	return 0.5 + normPDF(z)*sum
}

func normPDF(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}

// NormInv is the standard normal quantile function (Wichura, algorithm
// AS241, PPND16). The central region |p-0.5| <= 0.425 and two tail regions
// each use their own rational approximation.
func NormInv(p float64) float64 {
	q := p - 0.5
	if math.Abs(q) <= 0.425 {
		r := 0.180625 - q*q
		return q * (((((((r*2509.0809287301226727+
			33430.575583588128105)*r+67265.770927008700853)*r+
			45921.953931549871457)*r+13731.693765509461125)*r+
			1971.5909503065514427)*r+133.14166789178437745)*r+
			3.387132872796366608) /
			(((((((r*5226.495278852545925+
				28729.085735721942674)*r+39307.89580009271061)*r+
				21213.794301586595867)*r+5394.1960214247511077)*r+
				687.1870074920579083)*r+42.313330701600911252)*r+1)
	}

	r := p
	if q > 0 {
		r = 1 - p
	}
	r = math.Sqrt(-math.Log(r))

	var x float64
	if r <= 5 {
		r -= 1.6
		x = (((((((r*7.7454501427834140764e-4+
			0.0227238449892691845833)*r+0.24178072517745061177)*r+
			1.27045825245236838258)*r+3.64784832476320460504)*r+
			5.7694972214606914055)*r+4.6303378461565452959)*r+
			1.42343711074968357734) /
			(((((((r*1.05075007164441684324e-9+
				5.475938084995344946e-4)*r+0.0151986665636164571966)*r+
				0.14810397642748007459)*r+0.68976733498510000455)*r+
				1.6763848301838038494)*r+2.05319162663775882187)*r+1)
	} else {
		r -= 5
		x = (((((((r*2.01033439929228813265e-7+
			2.71155556874348757815e-5)*r+0.0012426609473880784386)*r+
			0.026532189526576123093)*r+0.29656057182850489123)*r+
			1.7848265399172913358)*r+5.4637849111641143699)*r+
			6.6579046435011037772) /
			(((((((r*2.04426310338993978564e-15+
				1.4215117583164458887e-7)*r+1.8463183175100546818e-5)*r+
				7.868691311456132591e-4)*r+0.0148753612908506148525)*r+
				0.13692988092273580531)*r+0.59983220655588793769)*r+1)
	}
	if q < 0 {
		x = -x
	}
	return x
}

func fnNormDist(args []Thunk, ctx *Context) value.Value {
	if err := arity("NORMDIST", args, 4, 4); err != nil {
		return err
	}
	x, err := number(args, 0, ctx)
	if err != nil {
		return err
	}
	mu, err := number(args, 1, ctx)
	if err != nil {
		return err
	}
	sigma, err := number(args, 2, ctx)
	if err != nil {
		return err
	}
	cumulative, err := boolean(args, 3, ctx)
	if err != nil {
		return err
	}
	if sigma <= 0 {
		return value.Errorf(value.CodeNum, "NORMDIST: standard deviation %s must be positive", value.FormatNumber(sigma))
	}
	z := (x - mu) / sigma
	if cumulative {
		return result(NormCDF(z))
	}
	return result(normPDF(z) / sigma)
}

func fnNormInv(args []Thunk, ctx *Context) value.Value {
	if err := arity("NORMINV", args, 3, 3); err != nil {
		return err
	}
	p, err := number(args, 0, ctx)
	if err != nil {
		return err
	}
	mu, err := number(args, 1, ctx)
	if err != nil {
		return err
	}
	sigma, err := number(args, 2, ctx)
	if err != nil {
		return err
	}
	switch {
	case p <= 0 || p >= 1:
		return value.Errorf(value.CodeNum, "NORMINV: probability %s outside (0,1)", value.FormatNumber(p))
	case sigma <= 0:
		return value.Errorf(value.CodeNum, "NORMINV: standard deviation %s must be positive", value.FormatNumber(sigma))
	}
	return result(mu + sigma*NormInv(p))
}
