package render

import (
	"math"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedback-cli/internal/payload"
)

// statistic computes metric over the numeric entries of vals. ok is false
// when there is nothing to aggregate.
func statistic(metric string, vals []payload.Value) (value float64, ok bool, err error) {
	var xs []float64
	for _, v := range vals {
		if n, isNum := v.Num(); isNum && !math.IsNaN(n) {
			xs = append(xs, n)
		}
	}
	if metric == "count" {
		return float64(len(xs)), true, nil
	}
	if len(xs) == 0 {
		switch metric {
		case "avg", "median", "sd":
			return 0, false, nil
		}
	}
	switch metric {
	case "avg":
		return mean(xs), true, nil
	case "median":
		return median(xs), true, nil
	case "sd":
		return sampleSD(xs), true, nil
	default:
		return 0, false, eris.Errorf("render: invalid metric %q", metric)
	}
}

func formatStat(metric string, v float64, precision int) string {
	if metric == "count" {
		return strconv.Itoa(int(v))
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// sampleSD is the n-1 standard deviation, 0 below two values.
func sampleSD(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}
