package util

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// Audio holds decoded mono PCM samples.
type Audio struct {
	Samples    []float64
	SampleRate int
}

// Duration reports the clip length in seconds.
func (a Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

var ErrUnsupportedAudio = errors.New("unsupported audio format")

// DecodeWAV parses a PCM (s16le) WAV payload into mono samples. Stereo
// input is downmixed by channel averaging.
func DecodeWAV(data []byte) (Audio, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Audio{}, ErrUnsupportedAudio
	}

	var (
		sampleRate    int
		numChannels   int
		bitsPerSample int
		pcm           []byte
	)

	// walk the chunk list; fmt must precede data
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Audio{}, ErrUnsupportedAudio
			}
			audioFormat := int(binary.LittleEndian.Uint16(data[body : body+2]))
			numChannels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if audioFormat != 1 || bitsPerSample != 16 {
				return Audio{}, ErrUnsupportedAudio
			}
		case "data":
			pcm = data[body : body+chunkSize]
		}

		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if sampleRate == 0 || numChannels == 0 || pcm == nil {
		return Audio{}, ErrUnsupportedAudio
	}

	frameCount := len(pcm) / (2 * numChannels)
	samples := make([]float64, frameCount)
	for i := 0; i < frameCount; i++ {
		var sum float64
		for c := 0; c < numChannels; c++ {
			off := (i*numChannels + c) * 2
			v := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			sum += float64(v) / 32768.0
		}
		samples[i] = sum / float64(numChannels)
	}

	return Audio{Samples: samples, SampleRate: sampleRate}, nil
}

// EncodeWAV renders mono samples as a 16-bit PCM WAV payload.
func EncodeWAV(a Audio) []byte {
	dataSize := len(a.Samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(a.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(a.SampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	for _, s := range a.Samples {
		v := math.Max(-1, math.Min(1, s))
		binary.Write(buf, binary.LittleEndian, int16(v*32767))
	}
	return buf.Bytes()
}

// Resample converts the clip to targetRate using linear interpolation.
// The input is returned unchanged when already at the target rate.
func Resample(a Audio, targetRate int) Audio {
	if a.SampleRate == targetRate || a.SampleRate <= 0 || len(a.Samples) == 0 {
		return Audio{Samples: a.Samples, SampleRate: targetRate}
	}

	ratio := float64(a.SampleRate) / float64(targetRate)
	outLen := int(float64(len(a.Samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(a.Samples)-1 {
			out[i] = a.Samples[len(a.Samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = a.Samples[idx]*(1-frac) + a.Samples[idx+1]*frac
	}
	return Audio{Samples: out, SampleRate: targetRate}
}

// ProbeDuration reports the length in seconds of a WAV or MP3 file.
func ProbeDuration(path string) (float64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		audio, err := DecodeWAV(data)
		if err != nil {
			return 0, err
		}
		return audio.Duration(), nil
	case ".mp3":
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		dec, err := mp3.NewDecoder(f)
		if err != nil {
			return 0, fmt.Errorf("decode mp3: %w", err)
		}
		n, err := io.Copy(io.Discard, dec)
		if err != nil {
			return 0, fmt.Errorf("read mp3: %w", err)
		}
		// decoder output is stereo s16le
		return float64(n) / float64(dec.SampleRate()*4), nil
	default:
		return 0, ErrUnsupportedAudio
	}
}
