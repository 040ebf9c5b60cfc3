package ingest

import (
	"time"
)

// SourceFormat identifies the codec of an uploaded audio file
type SourceFormat string

const (
	FormatWAV SourceFormat = "wav"
	FormatMP3 SourceFormat = "mp3"
)

// AudioAsset is the canonical decoded form of an uploaded audio file.
// It is immutable after validation: the pipeline hands it to the
// transcription stage and discards it afterwards.
type AudioAsset struct {
	// Data holds the audio payload. For WAV this is the raw PCM data
	// chunk; for MP3 the full encoded stream (transcription backends
	// accept MP3 content directly).
	Data []byte

	SampleRate   int
	Channels     int
	Duration     time.Duration
	SourceFormat SourceFormat
}

// Size returns the audio payload size in bytes
func (a *AudioAsset) Size() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data))
}
