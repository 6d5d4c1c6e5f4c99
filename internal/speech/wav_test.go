package speech

import (
	"encoding/binary"
	"math"
	"testing"
)

// buildWAV writes a canonical 44-byte-header PCM16 WAV.
func buildWAV(channels, rate int, frames [][]int16) []byte {
	dataLen := len(frames) * channels * 2
	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(rate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(rate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	off := 44
	for _, f := range frames {
		for _, s := range f {
			binary.LittleEndian.PutUint16(buf[off:], uint16(s))
			off += 2
		}
	}
	return buf
}

func TestDecodeWAVMono(t *testing.T) {
	wav := buildWAV(1, 22050, [][]int16{{0}, {math.MaxInt16}, {-math.MaxInt16}})
	samples, rate, err := decodeWAV(wav)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if rate != 22050 {
		t.Errorf("rate = %d, want 22050", rate)
	}
	if len(samples) != 3 {
		t.Fatalf("len = %d, want 3", len(samples))
	}
	if samples[0] != 0 || samples[1] != 1 || samples[2] != -1 {
		t.Errorf("samples = %v", samples)
	}
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	wav := buildWAV(2, 16000, [][]int16{{math.MaxInt16, 0}, {-math.MaxInt16, -math.MaxInt16}})
	samples, _, err := decodeWAV(wav)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if len(samples) != 2 || samples[0] != 0.5 || samples[1] != -1 {
		t.Errorf("samples = %v, want [0.5 -1]", samples)
	}
}

func TestDecodeWAVStreamingSize(t *testing.T) {
	wav := buildWAV(1, 16000, [][]int16{{1}, {2}})
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)
	samples, _, err := decodeWAV(wav)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("len = %d, want 2", len(samples))
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := decodeWAV([]byte("ID3 this is an mp3")); err == nil {
		t.Error("expected error for non-WAV input")
	}
	wav := buildWAV(1, 16000, [][]int16{{1}})
	binary.LittleEndian.PutUint16(wav[34:36], 8)
	if _, _, err := decodeWAV(wav); err == nil {
		t.Error("expected error for 8-bit WAV")
	}
}

func TestResampleLength(t *testing.T) {
	in := make([]float32, 22050)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 220 * float64(i) / 22050))
	}
	out := resample(in, 22050, 44100)
	if len(out) != 44100 {
		t.Errorf("upsampled len = %d, want 44100", len(out))
	}
	out = resample(in, 22050, 11025)
	if len(out) != 11025 {
		t.Errorf("downsampled len = %d, want 11025", len(out))
	}
	if same := resample(in, 22050, 22050); len(same) != len(in) {
		t.Error("equal rates should pass through")
	}
}

func TestSincKernelUnityGain(t *testing.T) {
	var sum float32
	for _, k := range sincKernel(8000, 44100, 31) {
		sum += k
	}
	if math.Abs(float64(sum-1)) > 1e-4 {
		t.Errorf("kernel sum = %f, want 1", sum)
	}
}

func TestRenderAppliesPitch(t *testing.T) {
	frames := make([][]int16, 1000)
	for i := range frames {
		frames[i] = []int16{int16(i)}
	}
	wav := buildWAV(1, 16000, frames)

	normal, err := render(wav, 16000, 1)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	higher, err := render(wav, 16000, 2)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(normal) != 2000 {
		t.Errorf("normal bytes = %d, want 2000", len(normal))
	}
	if len(higher) != 1000 {
		t.Errorf("pitched bytes = %d, want 1000", len(higher))
	}
}
