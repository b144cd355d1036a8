// Package audio converts between the float sample buffers produced and consumed
// by audio devices and the 16-bit PCM payloads exchanged with the live endpoint.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/vango-go/portfolio/pkg/core"
)

const (
	// InputSampleRate is the capture rate sent to the live endpoint.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of audio returned by the live endpoint.
	OutputSampleRate = 24000

	// InputMIMEType labels outbound realtime audio.
	InputMIMEType = "audio/pcm;rate=16000"
)

// Format describes mono or interleaved 16-bit PCM at a fixed rate.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the PCM16 byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.channels() * 2
}

// Duration returns the playback length of n samples per channel.
func (f Format) Duration(samples int) time.Duration {
	if f.SampleRate <= 0 || samples <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Samples returns how many samples per channel cover d.
func (f Format) Samples(d time.Duration) int {
	if f.SampleRate <= 0 || d <= 0 {
		return 0
	}
	return int(d * time.Duration(f.SampleRate) / time.Second)
}

func (f Format) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}

// Float32ToPCM16 scales samples in [-1, 1] by 32768 and writes them as signed
// 16-bit little-endian. Out-of-range samples are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768.0)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat32 divides each signed 16-bit little-endian sample by 32768.
func PCM16ToFloat32(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, core.NewDecodeError(fmt.Sprintf("pcm16 payload has odd length %d", len(pcm)), nil)
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out, nil
}

// EncodeBase64 returns the standard base64 text of raw bytes.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes standard base64 text.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, core.NewDecodeError("invalid base64 audio payload", err)
	}
	return b, nil
}

// EncodeChunk turns one capture window into the transport text of a realtime input unit.
func EncodeChunk(samples []float32) string {
	return EncodeBase64(Float32ToPCM16(samples))
}

// DecodeChunk turns transport text back into float samples.
func DecodeChunk(s string) ([]float32, error) {
	raw, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	return PCM16ToFloat32(raw)
}

// Float32LE encodes samples as IEEE-754 little-endian floats.
func Float32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// ParseFloat32LE decodes IEEE-754 little-endian floats.
func ParseFloat32LE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, core.NewDecodeError(fmt.Sprintf("float32 payload length %d is not a multiple of 4", len(b)), nil)
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// RMS returns the root-mean-square level of samples, between 0 and 1.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
