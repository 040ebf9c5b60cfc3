package ingest

import (
	"fmt"
	"strings"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/errors"

	"github.com/sirupsen/logrus"
)

// Validator checks uploaded audio against the configured limits and
// normalizes it into an AudioAsset. Validation failures are
// client-caused and never retried.
type Validator struct {
	logger *logrus.Logger
	config *config.IngestConfig
}

// NewValidator creates a new upload validator
func NewValidator(logger *logrus.Logger, cfg *config.IngestConfig) *Validator {
	return &Validator{
		logger: logger,
		config: cfg,
	}
}

// Validate checks the raw upload and produces an immutable AudioAsset.
// The declared MIME type is a hint only; the actual codec is detected
// from the payload and the two must agree with the configured formats.
func (v *Validator) Validate(data []byte, declaredMIME string) (*AudioAsset, error) {
	if len(data) == 0 {
		return nil, errors.NewValidation("uploaded file is empty")
	}

	if int64(len(data)) > v.config.MaxFileSize {
		return nil, errors.NewValidation(
			fmt.Sprintf("file size %d exceeds maximum of %d bytes", len(data), v.config.MaxFileSize),
			map[string]interface{}{"size": len(data), "max_size": v.config.MaxFileSize},
		)
	}

	format := detectFormat(data, declaredMIME)
	if format == "" {
		return nil, errors.NewValidation("unrecognized audio format, expected one of: " +
			strings.Join(v.config.SupportedFormats, ", "))
	}

	if !v.config.SupportsFormat(string(format)) {
		return nil, errors.NewValidation(
			fmt.Sprintf("audio format %q is not enabled, expected one of: %s",
				format, strings.Join(v.config.SupportedFormats, ", ")),
		)
	}

	asset, err := v.decode(data, format)
	if err != nil {
		return nil, err
	}

	if asset.Duration <= 0 {
		return nil, errors.NewValidation("audio file has zero duration")
	}

	if asset.Duration > v.config.MaxDuration {
		return nil, errors.NewValidation(
			fmt.Sprintf("audio duration %s exceeds maximum of %s", asset.Duration, v.config.MaxDuration),
			map[string]interface{}{"duration": asset.Duration.String()},
		)
	}

	v.logger.WithFields(logrus.Fields{
		"format":      asset.SourceFormat,
		"sample_rate": asset.SampleRate,
		"channels":    asset.Channels,
		"duration":    asset.Duration.String(),
		"bytes":       len(asset.Data),
	}).Debug("Audio upload validated")

	return asset, nil
}

func (v *Validator) decode(data []byte, format SourceFormat) (*AudioAsset, error) {
	switch format {
	case FormatWAV:
		info, err := parseWAV(data)
		if err != nil {
			return nil, errors.NewValidation("corrupt WAV file: " + err.Error())
		}
		pcm := data[info.dataOffset : info.dataOffset+info.dataSize]
		return &AudioAsset{
			Data:         pcm,
			SampleRate:   info.sampleRate,
			Channels:     info.channels,
			Duration:     info.duration(),
			SourceFormat: FormatWAV,
		}, nil

	case FormatMP3:
		info, err := parseMP3(data)
		if err != nil {
			return nil, errors.NewValidation("corrupt MP3 file: " + err.Error())
		}
		return &AudioAsset{
			Data:         data,
			SampleRate:   info.sampleRate,
			Channels:     info.channels,
			Duration:     info.duration(),
			SourceFormat: FormatMP3,
		}, nil

	default:
		return nil, errors.NewValidation(fmt.Sprintf("unsupported format %q", format))
	}
}

// detectFormat sniffs the payload's magic bytes, falling back to the
// declared MIME type when the payload is ambiguous.
func detectFormat(data []byte, declaredMIME string) SourceFormat {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return FormatWAV
	}
	if len(data) >= 3 && data[0] == 'I' && data[1] == 'D' && data[2] == '3' {
		return FormatMP3
	}
	if len(data) >= 2 && data[0] == 0xff && data[1]&0xe0 == 0xe0 {
		return FormatMP3
	}

	switch strings.ToLower(strings.TrimSpace(declaredMIME)) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return FormatWAV
	case "audio/mpeg", "audio/mp3":
		return FormatMP3
	}

	return ""
}
