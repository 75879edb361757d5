package adapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
)

// LogrusRecord exposes a logrus entry as a logging.Record. Fields are
// appended to the message sorted by key.
type LogrusRecord struct {
	Entry *logrus.Entry
}

func (r LogrusRecord) Created() float64 {
	return logging.Seconds(r.Entry.Time)
}

func (r LogrusRecord) LevelName() string {
	return strings.ToUpper(r.Entry.Level.String())
}

func (r LogrusRecord) Message() (string, error) {
	keys := make([]string, 0, len(r.Entry.Data))
	for k := range r.Entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(r.Entry.Message)
	for _, k := range keys {
		v := r.Entry.Data[k]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fmt.Fprintf(&sb, " %s=%s", k, quoteIfNeeded(fmt.Sprint(v)))
	}
	return sb.String(), nil
}

// LogrusHook forwards logrus entries to an Emitter.
//
//	logger.AddHook(adapter.NewLogrusHook(h, logrus.InfoLevel))
type LogrusHook struct {
	emitter logging.Emitter
	levels  []logrus.Level
}

// NewLogrusHook fires for minLevel and every more severe level.
func NewLogrusHook(e logging.Emitter, minLevel logrus.Level) *LogrusHook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &LogrusHook{emitter: e, levels: levels}
}

func (h *LogrusHook) Levels() []logrus.Level { return h.levels }

func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	return h.emitter.Emit(LogrusRecord{Entry: entry})
}
