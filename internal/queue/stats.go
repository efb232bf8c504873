package queue

import "math"

// Mean returns the arithmetic mean of values, false when empty.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// StdDev returns the sample standard deviation (n-1 denominator). It needs at
// least two values.
func StdDev(values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	mean, _ := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)-1)), true
}
