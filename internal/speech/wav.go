package speech

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// decodeWAV reads 16-bit PCM WAV data into mono float32 samples in [-1, 1].
// Multi-channel input is averaged down to one channel.
func decodeWAV(data []byte) ([]float32, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, errNotWAV
	}

	var (
		format, channels, bits uint16
		rate                   uint32
		pcm                    []byte
		haveFmt                bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := data[off+8:]
		// Streaming servers often write 0 or 0xFFFFFFFF for the data size.
		if size > len(body) {
			size = len(body)
		}
		body = body[:size]

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("short fmt chunk")
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			rate = binary.LittleEndian.Uint32(body[4:8])
			bits = binary.LittleEndian.Uint16(body[14:16])
			haveFmt = true
		case "data":
			pcm = body
		}
		off += 8 + size + size%2
	}

	if !haveFmt || pcm == nil {
		return nil, 0, fmt.Errorf("wav missing fmt or data chunk")
	}
	if format != 1 || bits != 16 {
		return nil, 0, fmt.Errorf("unsupported wav encoding: format %d, %d bits", format, bits)
	}
	if channels == 0 {
		return nil, 0, fmt.Errorf("wav has zero channels")
	}

	frame := int(channels) * 2
	n := len(pcm) / frame
	out := make([]float32, n)
	for i := range n {
		var sum float32
		for c := range int(channels) {
			s := int16(binary.LittleEndian.Uint16(pcm[i*frame+c*2:]))
			sum += float32(s) / math.MaxInt16
		}
		out[i] = sum / float32(channels)
	}
	return out, int(rate), nil
}

// encodePCM16 converts float32 samples to little-endian signed 16-bit PCM.
func encodePCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(clamped*math.MaxInt16)))
	}
	return buf
}

// resample converts samples from srcRate to dstRate by linear interpolation
// with a windowed-sinc low-pass against aliasing and imaging.
func resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	cutoff := float64(min(srcRate, dstRate)) / 2.0
	if srcRate > dstRate {
		samples = lowPass(samples, cutoff, float64(srcRate), 31)
	}

	ratio := float64(srcRate) / float64(dstRate)
	out := make([]float32, int(float64(len(samples))/ratio))
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		if idx+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}

	if dstRate > srcRate {
		out = lowPass(out, cutoff, float64(dstRate), 31)
	}
	return out
}

func lowPass(samples []float32, cutoff, sampleRate float64, taps int) []float32 {
	kernel := sincKernel(cutoff, sampleRate, taps)
	half := taps / 2
	out := make([]float32, len(samples))
	for i := range samples {
		jStart := max(0, half-i)
		jEnd := min(taps, len(samples)-i+half)
		var sum float32
		for j := jStart; j < jEnd; j++ {
			sum += samples[i+j-half] * kernel[j]
		}
		out[i] = sum
	}
	return out
}

// sincKernel builds a Blackman-windowed sinc kernel normalized to unity DC
// gain.
func sincKernel(cutoff, sampleRate float64, taps int) []float32 {
	fc := cutoff / sampleRate
	half := taps / 2
	kernel := make([]float32, taps)

	var sum float64
	for i := range taps {
		n := float64(i - half)
		sinc := 1.0
		if n != 0 {
			x := 2.0 * math.Pi * fc * n
			sinc = math.Sin(x) / x
		}
		w := 0.42 - 0.5*math.Cos(2.0*math.Pi*float64(i)/float64(taps-1)) +
			0.08*math.Cos(4.0*math.Pi*float64(i)/float64(taps-1))
		kernel[i] = float32(sinc * w)
		sum += sinc * w
	}
	scale := float32(1.0 / sum)
	for i := range kernel {
		kernel[i] *= scale
	}
	return kernel
}
