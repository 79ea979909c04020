package math

import (
	stdmath "math"
	"sort"
)

// Mean returns the arithmetic mean of the series, 0 for an empty series
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// Median returns the middle value of the sorted series, the mean of the two
// middle values for an even length, 0 for an empty series
func Median(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sorted := sortedCopy(series)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Mode buckets values to the nearest bucketSize before frequency counting and
// returns the centre of the most frequent bucket. Ties resolve to the lowest
// bucket. Returns 0 for an empty series or a non-positive bucket size.
func Mode(series []float64, bucketSize float64) float64 {
	if len(series) == 0 || bucketSize <= 0 {
		return 0
	}
	counts := map[int64]int{}
	for _, v := range series {
		bucket := int64(stdmath.Round(v / bucketSize))
		counts[bucket]++
	}
	var best int64
	bestCount := -1
	for bucket, count := range counts {
		if count > bestCount || (count == bestCount && bucket < best) {
			best = bucket
			bestCount = count
		}
	}
	return float64(best) * bucketSize
}

// Variance returns the population variance of the series
func Variance(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	mean := Mean(series)
	var sum float64
	for _, v := range series {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(series))
}

// StdDev returns the population standard deviation of the series
func StdDev(series []float64) float64 {
	return stdmath.Sqrt(Variance(series))
}

// Percentile returns the p-th percentile of the series using the
// nearest-rank method on the sorted series, p in (0,100]
func Percentile(series []float64, p float64) float64 {
	if len(series) == 0 || p <= 0 || p > 100 {
		return 0
	}
	sorted := sortedCopy(series)
	rank := int(stdmath.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// ConfidenceInterval returns the lower and upper bound of the interval
// mean ± z×(stddev/√n)
func ConfidenceInterval(series []float64, z float64) (float64, float64) {
	if len(series) == 0 {
		return 0, 0
	}
	mean := Mean(series)
	margin := z * StdDev(series) / stdmath.Sqrt(float64(len(series)))
	return mean - margin, mean + margin
}

// LinearSlope returns the ordinary least-squares slope of the series with
// x = index, y = value. Fewer than two points yield a slope of 0.
func LinearSlope(series []float64) float64 {
	n := float64(len(series))
	if len(series) < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// IsFinite reports whether every value of the series is a finite number
func IsFinite(series []float64) bool {
	for _, v := range series {
		if stdmath.IsNaN(v) || stdmath.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func sortedCopy(series []float64) []float64 {
	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)
	return sorted
}
