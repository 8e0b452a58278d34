package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/hookline/internal/domain/otlplogs"
	"github.com/okian/hookline/internal/domain/transcript"
)

// LoadTranscript parses a transcript JSONL file.
func LoadTranscript(path string, cfg Config) (Batch, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Batch{}, fmt.Errorf("%w: %s", transcript.ErrFileNotFound, path)
		}
		return Batch{}, fmt.Errorf("%w: %w", transcript.ErrRead, err)
	}

	res := transcript.Parse(transcript.Input{
		FilePath:          path,
		PrivacyTier:       cfg.PrivacyTier,
		IngestedAt:        time.Now().UTC(),
		SessionIDFallback: cfg.SessionID,
	})
	return Batch{Events: res.ParsedEvents, Skipped: res.SkippedLines, Errors: res.Errors}, nil
}

// LoadOTEL reads an OTLP log export saved as JSON, or as protobuf when the
// file ends in .pb or .binpb.
func LoadOTEL(path string, cfg Config) (Batch, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("read export %s: %w", path, err)
	}

	contentType := otlplogs.ContentTypeJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pb", ".binpb":
		contentType = otlplogs.ContentTypeProtobuf
	}

	payload, err := otlplogs.DecodeExport(contentType, body)
	if err != nil {
		return Batch{}, err
	}

	res := otlplogs.Normalize(otlplogs.Input{
		PrivacyTier: cfg.PrivacyTier,
		IngestedAt:  time.Now().UTC(),
		Payload:     payload,
	})
	if !res.OK && len(res.Events) == 0 {
		return Batch{}, fmt.Errorf("%w: %s", ErrNoEvents, strings.Join(res.Errors, "; "))
	}
	return Batch{Events: res.Events, Skipped: res.DroppedRecords, Errors: res.Errors}, nil
}
