package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// RawPCMSampleRate is assumed for payloads that are not WAV containers,
// which is what OpenAI-style speech endpoints return for the pcm format
const RawPCMSampleRate = 24000

// PCM is decoded interleaved 16-bit audio
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the playback length in seconds
func (p PCM) Duration() float64 {
	if p.SampleRate == 0 || p.Channels == 0 {
		return 0
	}
	return float64(len(p.Samples)/p.Channels) / float64(p.SampleRate)
}

// EncodeWAV packs mono 16-bit samples into a WAV container
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to encode")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav header: %w", err)
	}

	return ws.Bytes(), nil
}

// DecodeWAV reads a WAV container into 16-bit PCM.
// Payloads that are not WAV are treated as raw little-endian mono PCM at RawPCMSampleRate.
func DecodeWAV(data []byte) (PCM, error) {
	if len(data) == 0 {
		return PCM{}, errors.New("empty audio payload")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		samples, err := BytesToSamples(data[:len(data)-len(data)%2])
		if err != nil {
			return PCM{}, err
		}
		return PCM{Samples: samples, SampleRate: RawPCMSampleRate, Channels: 1}, nil
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("failed to decode wav: %w", err)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}

	return PCM{
		Samples:    toInt16(buf.Data, int(dec.BitDepth)),
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
	}, nil
}

// toInt16 rescales decoder integers of any bit depth to 16 bits
func toInt16(data []int, bitDepth int) []int16 {
	out := make([]int16, len(data))
	for i, v := range data {
		switch {
		case bitDepth == 8:
			out[i] = int16((v - 128) << 8)
		case bitDepth > 16:
			out[i] = int16(v >> uint(bitDepth-16))
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// memWriteSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch chunk sizes once all samples are written
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, end*2)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = int(next)
	return next, nil
}

// Bytes returns the written contents
func (m *memWriteSeeker) Bytes() []byte {
	return m.buf
}
