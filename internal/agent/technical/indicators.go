package technical

import (
	"math"

	"TradeBot/internal/domain/models"
)

// EMA returns the exponential moving average series with span smoothing, unadjusted.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// ewmAdjusted is the bias-adjusted exponential mean for decay alpha.
func ewmAdjusted(values []float64, alpha float64) []float64 {
	out := make([]float64, len(values))
	var num, den float64
	for i, v := range values {
		num = v + (1-alpha)*num
		den = 1 + (1-alpha)*den
		out[i] = num / den
	}
	return out
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var s float64
	for _, v := range values {
		s += v
	}
	return s / float64(len(values))
}

// sampleStd is the standard deviation with one degree of freedom removed.
func sampleStd(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return math.NaN()
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(n-1))
}

func populationStd(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)))
}

func tail(values []float64, n int) ([]float64, bool) {
	if n <= 0 || len(values) < n {
		return nil, false
	}
	return values[len(values)-n:], true
}

// Returns are simple period-over-period changes; len(out) == len(closes)-1.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out[i-1] = closes[i]/closes[i-1] - 1
	}
	return out
}

// rollingStd returns the sample std of each full window.
func rollingStd(values []float64, window int) []float64 {
	if len(values) < window {
		return nil
	}
	out := make([]float64, 0, len(values)-window+1)
	for i := window; i <= len(values); i++ {
		out = append(out, sampleStd(values[i-window:i]))
	}
	return out
}

// Skew is the bias-corrected sample skewness.
func Skew(values []float64) float64 {
	n := float64(len(values))
	if n < 3 {
		return math.NaN()
	}
	m := mean(values)
	var m2, m3 float64
	for _, v := range values {
		d := v - m
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= n
	m3 /= n
	if m2 == 0 {
		return 0
	}
	return math.Sqrt(n*(n-1)) / (n - 2) * m3 / math.Pow(m2, 1.5)
}

// RSI uses adjusted exponential averages of gains and losses with com = period-1.
func RSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return math.NaN()
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	alpha := 1.0 / float64(period)
	g := last(ewmAdjusted(gains, alpha))
	l := last(ewmAdjusted(losses, alpha))
	if l == 0 {
		return 100
	}
	return 100 - 100/(1+g/l)
}

func highLow(b models.Bar) (float64, float64) {
	if b.High == 0 && b.Low == 0 {
		return b.Close, b.Close
	}
	return b.High, b.Low
}

func trueRanges(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		h, l := highLow(b)
		tr := h - l
		if i > 0 {
			pc := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
		}
		out[i] = tr
	}
	return out
}

// ATR is the simple mean of the last period true ranges. Zero when history is too short.
func ATR(bars []models.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}
	trs, _ := tail(trueRanges(bars), period)
	return mean(trs)
}

// ADX is the average directional index over period.
func ADX(bars []models.Bar, period int) float64 {
	if len(bars) < period+1 {
		return math.NaN()
	}
	n := len(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		h, l := highLow(bars[i])
		ph, pl := highLow(bars[i-1])
		up, down := h-ph, pl-l
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	alpha := 2.0 / (float64(period) + 1)
	tr := ewmAdjusted(trueRanges(bars), alpha)
	pdi := ewmAdjusted(plusDM, alpha)
	mdi := ewmAdjusted(minusDM, alpha)

	dx := make([]float64, n)
	for i := range dx {
		if tr[i] == 0 {
			continue
		}
		p := 100 * pdi[i] / tr[i]
		m := 100 * mdi[i] / tr[i]
		if p+m == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(p-m) / (p + m)
	}
	return last(ewmAdjusted(dx, alpha))
}

// Hurst estimates the Hurst exponent from lagged-difference dispersion.
// Below 0.5 the series mean-reverts; 0.5 is returned when history is too short.
func Hurst(closes []float64, maxLag int) float64 {
	if len(closes) < maxLag*2 {
		return 0.5
	}
	var xs, ys []float64
	for lag := 2; lag < maxLag; lag++ {
		diffs := make([]float64, len(closes)-lag)
		for i := range diffs {
			diffs[i] = closes[i+lag] - closes[i]
		}
		tau := math.Max(1e-8, math.Sqrt(populationStd(diffs)))
		xs = append(xs, math.Log(float64(lag)))
		ys = append(ys, math.Log(tau))
	}
	slope, ok := linearSlope(xs, ys)
	if !ok {
		return 0.5
	}
	return slope
}

func linearSlope(xs, ys []float64) (float64, bool) {
	mx, my := mean(xs), mean(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		den += (xs[i] - mx) * (xs[i] - mx)
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
