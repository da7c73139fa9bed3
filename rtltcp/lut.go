package rtltcp

// sampleLUT maps an unsigned 8 bit sample to [-1, 1) centered at 127.5
var sampleLUT [256]float32

func init() {
	const scale = 1.0 / 127.5
	for i := range sampleLUT {
		sampleLUT[i] = float32((float64(i) - 127.5) * scale)
	}
}

// SampleValue returns the normalized value of a raw sample byte
func SampleValue(b byte) float32 {
	return sampleLUT[b]
}
