package multimodal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unsafe"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Transcriber turns raw audio bytes into a text transcript. It is an
// interface so tests can substitute a fixed transcript instead of loading
// an actual ggml model.
type Transcriber interface {
	Transcribe(samples []byte) (string, error)
}

// WhisperTranscriber wraps a loaded whisper.cpp model. One instance is
// reused across jobs; whisper.New loads the ggml weights once at process
// startup.
type WhisperTranscriber struct {
	model whisper.Model
}

// NewWhisperTranscriber loads modelPath. Returns nil, nil when modelPath
// is empty so audio jobs are rejected rather than the process failing to
// start.
func NewWhisperTranscriber(modelPath string) (*WhisperTranscriber, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, nil
	}
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	return &WhisperTranscriber{model: model}, nil
}

// Transcribe decodes a WAV byte stream into float32 samples and runs
// them through whisper, concatenating every recognized segment.
func (t *WhisperTranscriber) Transcribe(wavBytes []byte) (string, error) {
	if t == nil {
		return "", fmt.Errorf("whisper transcription not configured")
	}
	samples, err := decodeWAV(wavBytes)
	if err != nil {
		return "", fmt.Errorf("decode wav: %w", err)
	}

	context, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new whisper context: %w", err)
	}
	if err := context.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}

	var out strings.Builder
	for {
		segment, err := context.NextSegment()
		if err != nil {
			break
		}
		if out.Len() > 0 {
			out.WriteString(" ")
		}
		out.WriteString(segment.Text)
	}
	return strings.TrimSpace(out.String()), nil
}

// wavHeader mirrors the canonical 44-byte PCM WAV header.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// decodeWAV converts 16-bit or 32-bit-float PCM WAV bytes to mono float32
// samples in [-1.0, 1.0], the format whisper.cpp expects. Whisper also
// expects 16kHz audio; a mismatched sample rate is accepted as-is and left
// to degrade transcription quality rather than resampling, since the pack
// carries no resampling library.
func decodeWAV(b []byte) ([]float32, error) {
	r := bytes.NewReader(b)

	var header wavHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	audioData := make([]byte, header.Subchunk2Size)
	if _, err := io.ReadFull(r, audioData); err != nil {
		return nil, fmt.Errorf("read audio data: %w", err)
	}

	var samples []float32
	switch header.BitsPerSample {
	case 16:
		for i := 0; i+1 < len(audioData); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(audioData[i : i+2]))
			samples = append(samples, float32(sample)/32768.0)
		}
	case 32:
		for i := 0; i+3 < len(audioData); i += 4 {
			bits := binary.LittleEndian.Uint32(audioData[i : i+4])
			samples = append(samples, *(*float32)(unsafe.Pointer(&bits)))
		}
	default:
		return nil, fmt.Errorf("unsupported bits per sample: %d", header.BitsPerSample)
	}

	if header.NumChannels == 2 {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2.0
		}
		samples = mono
	}
	return samples, nil
}
