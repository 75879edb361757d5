package logging

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenRecord struct{ BasicRecord }

func (brokenRecord) Message() (string, error) {
	return "", errors.New("not enough arguments for format string")
}

func TestEncode_PreservesContent(t *testing.T) {
	r := BasicRecord{Time: 1234567890.0, Level: "INFO", Text: "Test message"}

	entry, err := Encode(r, nil)
	require.NoError(t, err)

	assert.Equal(t, BufferedEntry{Timestamp: 1234567890.0, Level: "INFO", Message: "Test message"}, entry)
}

func TestEncode_PropagatesFormatError(t *testing.T) {
	r := brokenRecord{BasicRecord{Time: 1, Level: "INFO"}}

	_, err := Encode(r, PlainFormatter{})
	assert.ErrorContains(t, err, "not enough arguments")

	_, err = Encode(nil, PlainFormatter{})
	assert.Error(t, err)
}

func TestEncode_RejectsUnrepresentableTimestamp(t *testing.T) {
	for _, ts := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 1e10, -1e10} {
		_, err := Encode(BasicRecord{Time: ts, Level: "INFO", Text: "x"}, nil)
		assert.Error(t, err, "timestamp %v", ts)
	}

	_, err := Encode(BasicRecord{Time: 9.2e9, Level: "INFO", Text: "x"}, nil)
	assert.NoError(t, err)
}

func TestJSONFormatter(t *testing.T) {
	r := BasicRecord{Time: 1, Level: "ERROR", Text: "boom"}

	line, err := JSONFormatter{Fields: map[string]string{"service": "api"}}.Format(r)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, map[string]string{"level": "ERROR", "message": "boom", "service": "api"}, got)
}

func TestSeconds(t *testing.T) {
	ts := time.Unix(1234567890, 500_000_000)

	assert.InDelta(t, 1234567890.5, Seconds(ts), 1e-6)
}
