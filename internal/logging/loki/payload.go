package loki

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
)

// Value is one line of a stream: [<unix ns>, <line>].
type Value struct {
	Timestamp string
	Line      string
}

type Stream struct {
	Labels logging.LabelSet
	Values []Value
}

// Request is a single push: one stream per distinct label set, in first-seen
// order.
type Request struct {
	Streams []Stream
}

// NewRequest groups entries under static labels.
func NewRequest(entries []logging.BufferedEntry, static logging.LabelSet) *Request {
	return &Request{Streams: Group(entries, static)}
}

// Group partitions entries by their full label set (level first, then the
// static labels). Streams come out in first-seen order and each keeps its
// entries in buffer order.
func Group(entries []logging.BufferedEntry, static logging.LabelSet) []Stream {
	index := make(map[string]int)
	var streams []Stream

	for _, entry := range entries {
		labels := static.With(logging.LevelLabel, entry.Level)
		key := labels.Key()

		i, exists := index[key]
		if !exists {
			i = len(streams)
			index[key] = i
			streams = append(streams, Stream{Labels: labels})
		}

		streams[i].Values = append(streams[i].Values, Value{
			Timestamp: NanoTimestamp(entry.Timestamp),
			Line:      entry.Message,
		})
	}

	return streams
}

// NanoTimestamp renders fractional epoch seconds as an integer count of
// nanoseconds, rounded to the nearest nanosecond. Values outside the int64
// nanosecond range are clamped to it; NaN renders as 0.
func NanoTimestamp(seconds float64) string {
	ns := math.Round(seconds * 1e9)
	switch {
	case math.IsNaN(ns):
		return "0"
	case ns >= math.MaxInt64:
		return strconv.FormatInt(math.MaxInt64, 10)
	case ns <= math.MinInt64:
		return strconv.FormatInt(math.MinInt64, 10)
	}
	return strconv.FormatInt(int64(ns), 10)
}

// Entries returns the number of lines across all streams.
func (r *Request) Entries() int {
	n := 0
	for _, s := range r.Streams {
		n += len(s.Values)
	}
	return n
}

// Serialize renders the push body. Label keys keep the stream's label order
// and separators are fixed, so equal requests always produce equal bytes.
func (r *Request) Serialize() ([]byte, error) {
	w := newJSONWriter()

	w.raw(`{"streams": [`)
	for i, s := range r.Streams {
		if i > 0 {
			w.raw(", ")
		}

		w.raw(`{"stream": {`)
		for j, l := range s.Labels.Labels() {
			if j > 0 {
				w.raw(", ")
			}
			w.str(l.Name)
			w.raw(": ")
			w.str(l.Value)
		}

		w.raw(`}, "values": [`)
		for j, v := range s.Values {
			if j > 0 {
				w.raw(", ")
			}
			w.raw("[")
			w.str(v.Timestamp)
			w.raw(", ")
			w.str(v.Line)
			w.raw("]")
		}
		w.raw("]}")
	}
	w.raw("]}")

	if w.err != nil {
		return nil, fmt.Errorf("failed to serialize push request: %w", w.err)
	}
	return w.out.Bytes(), nil
}

func (r *Request) MarshalJSON() ([]byte, error) {
	return r.Serialize()
}

type jsonWriter struct {
	out     bytes.Buffer
	scratch bytes.Buffer
	enc     *json.Encoder
	err     error
}

func newJSONWriter() *jsonWriter {
	w := &jsonWriter{}
	w.enc = json.NewEncoder(&w.scratch)
	w.enc.SetEscapeHTML(false)
	return w
}

func (w *jsonWriter) raw(s string) {
	w.out.WriteString(s)
}

func (w *jsonWriter) str(s string) {
	if w.err != nil {
		return
	}
	w.scratch.Reset()
	if w.err = w.enc.Encode(s); w.err != nil {
		return
	}
	// Encode terminates every value with a newline
	w.out.Write(bytes.TrimSuffix(w.scratch.Bytes(), []byte("\n")))
}
