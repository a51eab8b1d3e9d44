package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrNotWAV is returned by InspectFile for inputs that are not RIFF/WAVE audio.
var ErrNotWAV = errors.New("not a WAV file")

// WriteWAVFile encodes pcm and writes the result to path in a single write.
// It returns the number of bytes written.
func WriteWAVFile(path string, pcm []byte, format PCMFormat) (int, error) {
	data, err := EncodePCM(pcm, format)
	if err != nil {
		return 0, err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return len(data), nil
}

// InspectFile reads the format and data size of an arbitrary WAV file on disk.
// Unlike GetWAVInfo it accepts files with extra chunks between fmt and data.
func InspectFile(path string) (*WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}

	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%s: locate data chunk: %w", path, err)
	}

	return newInfo(d.SampleRate, d.NumChans, d.BitDepth, uint32(d.PCMLen())), nil
}
