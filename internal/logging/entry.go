package logging

import (
	"encoding/json"
	"fmt"
	"math"
)

// MaxTimestamp is the largest magnitude, in epoch seconds, whose nanosecond
// count fits in an int64.
const MaxTimestamp = float64(math.MaxInt64) / 1e9

// Encode converts a record into a BufferedEntry. Formatting errors are
// returned to the caller untouched by any buffer.
func Encode(r Record, f Formatter) (BufferedEntry, error) {
	if r == nil {
		return BufferedEntry{}, fmt.Errorf("failed to encode record: nil record")
	}
	if f == nil {
		f = PlainFormatter{}
	}

	created := r.Created()
	if math.IsNaN(created) || math.Abs(created) >= MaxTimestamp {
		return BufferedEntry{}, fmt.Errorf("failed to encode record: timestamp %v out of range", created)
	}

	msg, err := f.Format(r)
	if err != nil {
		return BufferedEntry{}, fmt.Errorf("failed to format record: %w", err)
	}

	return BufferedEntry{
		Timestamp: created,
		Level:     r.LevelName(),
		Message:   msg,
	}, nil
}

// PlainFormatter ships the resolved message as is.
type PlainFormatter struct{}

func (PlainFormatter) Format(r Record) (string, error) {
	return r.Message()
}

// JSONFormatter ships each line as a JSON object carrying the level, the
// message and any static Fields.
type JSONFormatter struct {
	Fields map[string]string
}

func (f JSONFormatter) Format(r Record) (string, error) {
	msg, err := r.Message()
	if err != nil {
		return "", err
	}

	line := make(map[string]string, len(f.Fields)+2)
	for k, v := range f.Fields {
		line[k] = v
	}
	line["level"] = r.LevelName()
	line["message"] = msg

	data, err := json.Marshal(line)
	if err != nil {
		return "", fmt.Errorf("failed to marshal line: %w", err)
	}
	return string(data), nil
}
