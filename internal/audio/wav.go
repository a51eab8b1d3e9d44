package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the length of the canonical minimal WAV header.
const HeaderSize = 44

const (
	fmtChunkSize = 16
	formatPCM    = 1

	// riffOverhead is everything in the header after the RIFF size field, minus the data itself.
	riffOverhead = HeaderSize - 8

	maxSampleWidth = math.MaxUint16 / 8
)

var (
	// ErrInvalidFormat is returned when channels, sample width or sample rate cannot be
	// represented in a WAV header.
	ErrInvalidFormat = errors.New("invalid PCM format")

	// ErrDataTooLarge is returned when the PCM payload does not fit the 32-bit RIFF size fields.
	ErrDataTooLarge = errors.New("PCM data too large for WAV container")

	// ErrHeaderTooShort is returned when fewer than HeaderSize bytes are available.
	ErrHeaderTooShort = errors.New("WAV data too short")
)

// EncodeError reports a parameter that was rejected before any bytes were produced.
type EncodeError struct {
	Field string
	Value int64
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode WAV: %s %d: %v", e.Field, e.Value, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// PCMFormat describes raw, headerless linear PCM. None of it can be recovered from the bytes
// themselves, so it must match the true encoding of the buffer.
type PCMFormat struct {
	Channels    int `yaml:"channels" json:"channels"`
	SampleWidth int `yaml:"sample_width" json:"sample_width"` // bytes per sample
	SampleRate  int `yaml:"sample_rate" json:"sample_rate"`
}

// FrameSize returns the number of bytes in one frame (one sample for every channel).
func (f PCMFormat) FrameSize() int {
	return f.Channels * f.SampleWidth
}

// ByteRate returns the number of bytes per second of audio.
func (f PCMFormat) ByteRate() int64 {
	return int64(f.SampleRate) * int64(f.Channels) * int64(f.SampleWidth)
}

// Validate checks that every field is positive and fits its header field.
func (f PCMFormat) Validate() error {
	if f.Channels < 1 || f.Channels > math.MaxUint16 {
		return &EncodeError{Field: "channels", Value: int64(f.Channels), Err: ErrInvalidFormat}
	}

	if f.SampleWidth < 1 || f.SampleWidth > maxSampleWidth {
		return &EncodeError{Field: "sample width", Value: int64(f.SampleWidth), Err: ErrInvalidFormat}
	}

	if f.SampleRate < 1 || int64(f.SampleRate) > math.MaxUint32 {
		return &EncodeError{Field: "sample rate", Value: int64(f.SampleRate), Err: ErrInvalidFormat}
	}

	if f.FrameSize() > math.MaxUint16 {
		return &EncodeError{Field: "block align", Value: int64(f.FrameSize()), Err: ErrInvalidFormat}
	}

	if f.ByteRate() > math.MaxUint32 {
		return &EncodeError{Field: "byte rate", Value: f.ByteRate(), Err: ErrInvalidFormat}
	}

	return nil
}

// WAVHeader represents the header structure of a canonical WAV file
type WAVHeader struct {
	RIFFTag       [4]byte // "RIFF"
	RIFFSize      uint32  // File size - 8 bytes
	WAVETag       [4]byte // "WAVE"
	FmtTag        [4]byte // "fmt "
	FmtSize       uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	DataTag       [4]byte // "data"
	DataSize      uint32  // Number of bytes in the data
}

// Params returns the PCM parameters the header describes.
func (h *WAVHeader) Params() PCMFormat {
	return PCMFormat{
		Channels:    int(h.NumChannels),
		SampleWidth: int(h.BitsPerSample) / 8,
		SampleRate:  int(h.SampleRate),
	}
}

func newHeader(format PCMFormat, dataSize uint32) WAVHeader {
	return WAVHeader{
		RIFFTag:       [4]byte{'R', 'I', 'F', 'F'},
		RIFFSize:      riffOverhead + dataSize,
		WAVETag:       [4]byte{'W', 'A', 'V', 'E'},
		FmtTag:        [4]byte{'f', 'm', 't', ' '},
		FmtSize:       fmtChunkSize,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.ByteRate()),
		BlockAlign:    uint16(format.FrameSize()),
		BitsPerSample: uint16(format.SampleWidth * 8),
		DataTag:       [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
}

func checkDataSize(n int64) error {
	if n > math.MaxUint32-riffOverhead {
		return &EncodeError{Field: "data size", Value: n, Err: ErrDataTooLarge}
	}
	return nil
}

// EncodePCM wraps raw PCM bytes in a minimal 44-byte WAV header. The PCM is copied verbatim:
// a trailing partial frame is neither padded nor dropped.
func EncodePCM(pcm []byte, format PCMFormat) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	if err := checkDataSize(int64(len(pcm))); err != nil {
		return nil, err
	}

	header := newHeader(format, uint32(len(pcm)))

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// ParseHeader reads the fixed header fields from the start of data.
func ParseHeader(data []byte) (*WAVHeader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrHeaderTooShort, HeaderSize, len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	return &header, nil
}

// ValidateWAV checks that data is a canonical PCM WAV whose size fields agree with its length.
func ValidateWAV(data []byte) error {
	header, err := ParseHeader(data)
	if err != nil {
		return err
	}

	if string(header.RIFFTag[:]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(header.WAVETag[:]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(header.FmtTag[:]) != "fmt " || header.FmtSize != fmtChunkSize {
		return fmt.Errorf("invalid WAV file: missing PCM fmt chunk")
	}

	if string(header.DataTag[:]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if header.AudioFormat != formatPCM {
		return fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if dataLen := uint32(len(data) - HeaderSize); header.DataSize != dataLen {
		return fmt.Errorf("invalid WAV file: data size %d, but %d bytes follow the header", header.DataSize, dataLen)
	}

	if header.RIFFSize != riffOverhead+header.DataSize {
		return fmt.Errorf("invalid WAV file: RIFF size %d does not match data size %d", header.RIFFSize, header.DataSize)
	}

	return nil
}

// WAVInfo contains basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
}

func newInfo(sampleRate uint32, channels, bitsPerSample uint16, dataSize uint32) *WAVInfo {
	info := &WAVInfo{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bitsPerSample,
		DataSize:      dataSize,
	}

	if frameSize := uint32(channels) * uint32(bitsPerSample) / 8; frameSize > 0 {
		info.NumFrames = dataSize / frameSize
	}
	if sampleRate > 0 {
		info.Duration = float64(info.NumFrames) / float64(sampleRate)
	}

	return info
}

// GetWAVInfo extracts metadata from a canonical WAV buffer
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	return newInfo(header.SampleRate, header.NumChannels, header.BitsPerSample, header.DataSize), nil
}
