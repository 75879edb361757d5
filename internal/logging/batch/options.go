package batch

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
	"github.com/Chichichkin/LokiLoggerHandler/internal/logging/loki"
)

// Options customize the Handler. Invalid values are coerced to defaults.
type Options struct {

	// Formatter renders each record into its line. The default is
	// logging.PlainFormatter.
	Formatter logging.Formatter

	// Timeout bounds a single flush, including a retry. The default is 10s.
	Timeout time.Duration

	// Credentials are passed to the Loki client built by NewLokiHandler.
	Credentials *loki.Credentials

	// BatchSize makes a started handler flush as soon as this many entries are
	// buffered. Zero disables the size trigger.
	BatchSize int

	// FlushInterval makes a started handler flush periodically. Zero disables
	// the timer.
	FlushInterval time.Duration

	// MaxEntries bounds the buffer; zero leaves it unbounded.
	MaxEntries int

	// Overflow applies once MaxEntries is reached. The default is DropOldest.
	// With Block, BatchSize is capped at MaxEntries so a full buffer always
	// triggers a flush of a started handler. An unstarted handler needs
	// explicit Flush calls to release blocked producers.
	Overflow OverflowPolicy

	// RetryOnce retries a failed push a single time, after RetryDelay.
	RetryOnce  bool
	RetryDelay time.Duration

	// RequeueOnFailure puts a batch that could not be pushed back in the
	// buffer for the next flush. By default it is dropped.
	RequeueOnFailure bool

	Logger logrus.FieldLogger
}

const (
	defaultTimeout    = 10 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
)

func DefaultOptions() *Options {
	return &Options{
		Formatter:  logging.PlainFormatter{},
		Timeout:    defaultTimeout,
		Overflow:   DropOldest,
		RetryDelay: defaultRetryDelay,
		Logger:     logging.InternalLogger(),
	}
}

func (o *Options) resolve() {
	if o.Formatter == nil {
		o.Formatter = logging.PlainFormatter{}
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.BatchSize < 0 {
		o.BatchSize = 0
	}
	if o.FlushInterval < 0 {
		o.FlushInterval = 0
	}
	if o.MaxEntries < 0 {
		o.MaxEntries = 0
	}
	if o.Overflow < DropOldest || o.Overflow > Block {
		o.Overflow = DropOldest
	}
	if o.Overflow == Block && o.MaxEntries > 0 && (o.BatchSize == 0 || o.BatchSize > o.MaxEntries) {
		o.BatchSize = o.MaxEntries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.Logger == nil {
		o.Logger = logging.InternalLogger()
	}
}
