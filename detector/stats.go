package detector

import "math"

func clamp01(x float64) float64 {
	switch {
	case x < 0 || math.IsNaN(x):
		return 0
	case x > 1:
		return 1
	}
	return x
}

// binaryEntropy is the Shannon entropy in bits of a two-outcome split.
func binaryEntropy(zeros, ones int) float64 {
	total := float64(zeros + ones)
	if zeros == 0 || ones == 0 {
		return 0
	}
	p0 := float64(zeros) / total
	p1 := float64(ones) / total
	return -p0*math.Log2(p0) - p1*math.Log2(p1)
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}

// byteEntropy is the Shannon entropy of data in bits per byte.
func byteEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	n := float64(len(data))
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// minPairCount skips sparse pairs, which make the statistic noisy.
const minPairCount = 8

// pairsOfValues runs the pairs-of-values chi-square test over value pairs
// (2k, 2k+1). LSB replacement equalizes each pair, which drives chi/df
// towards 1; unmodified media sits far above it. It returns the statistic
// per degree of freedom and the number of pairs used.
func pairsOfValues(pairs [][2]int) (ratio float64, df int) {
	chi := 0.0
	for _, p := range pairs {
		total := p[0] + p[1]
		if total < minPairCount {
			continue
		}
		expected := float64(total) / 2
		d0 := float64(p[0]) - expected
		d1 := float64(p[1]) - expected
		chi += (d0*d0 + d1*d1) / expected
		df++
	}
	if df == 0 {
		return 0, 0
	}
	return chi / float64(df), df
}

// povScore maps a pairs-of-values ratio to [0,1]: 1 at full equalization,
// falling off as the pairs diverge.
func povScore(ratio float64, df int) float64 {
	if df == 0 {
		return 0
	}
	excess := math.Max(ratio-1, 0)
	return math.Exp(-excess / 4)
}
