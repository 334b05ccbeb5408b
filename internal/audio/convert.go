package audio

import "math"

// calculateRMS16 calculates the root mean square of the audio buffer for int16 samples.
func calculateRMS16(buffer []int16) float64 {
	if len(buffer) == 0 {
		return 0
	}

	var sumSquares float64
	for _, sample := range buffer {
		val := float64(sample)
		sumSquares += val * val
	}

	return math.Sqrt(sumSquares / float64(len(buffer)))
}

func int16ToInt(input []int16) []int {
	output := make([]int, len(input))
	for i, value := range input {
		output[i] = int(value)
	}
	return output
}

// resampleInt16 converts mono samples between sample rates using linear interpolation.
func resampleInt16(input []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(input) == 0 {
		return input
	}

	ratio := float64(fromRate) / float64(toRate)
	output := make([]int16, int(float64(len(input))/ratio))

	for i := range output {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		if idx+1 >= len(input) {
			output[i] = input[len(input)-1]
			continue
		}

		output[i] = int16(float64(input[idx])*(1-frac) + float64(input[idx+1])*frac)
	}

	return output
}
