package logging

import (
	"context"
	"time"
)

// Record is the narrow view of a log event the handler needs from the host
// logging framework.
type Record interface {
	// Created returns the creation time in fractional seconds since the epoch.
	Created() float64
	// LevelName returns the severity name, e.g. "INFO".
	LevelName() string
	// Message returns the fully resolved message text.
	Message() (string, error)
}

// Formatter turns a record into the line shipped to Loki.
type Formatter interface {
	Format(r Record) (string, error)
}

// Emitter accepts records from an upstream producer.
type Emitter interface {
	Emit(r Record) error
}

// Flusher pushes everything buffered so far.
type Flusher interface {
	Flush(ctx context.Context) error
}

type BufferedEntry struct {
	Timestamp float64
	Level     string
	Message   string
}

// BasicRecord is a Record backed by plain values.
type BasicRecord struct {
	Time  float64
	Level string
	Text  string
}

func (r BasicRecord) Created() float64         { return r.Time }
func (r BasicRecord) LevelName() string        { return r.Level }
func (r BasicRecord) Message() (string, error) { return r.Text, nil }

// Seconds converts t to fractional seconds since the epoch.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
