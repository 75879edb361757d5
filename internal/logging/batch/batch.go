package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bitdabbler/backoff"
	"github.com/sirupsen/logrus"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
	"github.com/Chichichkin/LokiLoggerHandler/internal/logging/loki"
)

// Sender performs one push. *loki.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, req *loki.Request) error
}

var (
	_ logging.Emitter = (*Handler)(nil)
	_ logging.Flusher = (*Handler)(nil)
)

// Handler buffers records and pushes them to Loki in batches grouped by
// label set. Emit never touches the network; Flush does.
type Handler struct {
	opts    *Options
	labels  logging.LabelSet
	sender  Sender
	buffer  *Buffer
	metrics *HandlerMetrics
	log     logrus.FieldLogger

	flushMu sync.Mutex
	flushCh chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	stopCtx   context.CancelFunc
	wg        sync.WaitGroup
	closeErr  error
}

// NewHandler wraps sender. labels are the static labels added to every
// stream next to the entry level.
func NewHandler(sender Sender, labels logging.LabelSet, opts *Options) (*Handler, error) {
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if err := labels.ValidateStatic(); err != nil {
		return nil, err
	}

	if opts == nil {
		opts = DefaultOptions()
	} else {
		opts.resolve()
	}

	return &Handler{
		opts:    opts,
		labels:  labels,
		sender:  sender,
		buffer:  NewBuffer(opts.MaxEntries, opts.Overflow),
		metrics: &HandlerMetrics{},
		log:     opts.Logger.WithField("component", "loki_handler"),
		flushCh: make(chan struct{}, 1),
	}, nil
}

// NewLokiHandler builds a Loki client for url from opts and wraps it.
func NewLokiHandler(url string, labels logging.LabelSet, opts *Options) (*Handler, error) {
	if opts == nil {
		opts = DefaultOptions()
	} else {
		opts.resolve()
	}

	client, err := loki.NewClient(url, &loki.ClientOptions{
		Timeout:     opts.Timeout,
		Credentials: opts.Credentials,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create loki client: %w", err)
	}

	return NewHandler(client, labels, opts)
}

func (h *Handler) Labels() logging.LabelSet { return h.labels }

func (h *Handler) Options() Options { return *h.opts }

func (h *Handler) Sender() Sender { return h.sender }

func (h *Handler) Buffer() *Buffer { return h.buffer }

func (h *Handler) Stats() HandlerMetrics { return h.metrics.GetMetricsStamp() }

// Emit formats r and buffers it. Formatting errors are returned and leave the
// buffer untouched.
func (h *Handler) Emit(r logging.Record) error {
	entry, err := logging.Encode(r, h.opts.Formatter)
	if err != nil {
		return err
	}
	return h.EmitEntry(entry)
}

// EmitEntry buffers an already encoded entry.
func (h *Handler) EmitEntry(entry logging.BufferedEntry) error {
	n, dropped, err := h.buffer.Push(entry)
	if err != nil {
		return err
	}

	h.metrics.IncEntriesEmitted()
	if dropped {
		h.metrics.AddEntriesDropped(1)
		h.log.WithField("policy", h.opts.Overflow.String()).Debug("buffer full, entry dropped")
	}

	if h.opts.BatchSize > 0 && n >= h.opts.BatchSize {
		select {
		case h.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush pushes everything buffered so far as one request. It is a no-op on
// an empty buffer. Concurrent calls run one after another.
func (h *Handler) Flush(ctx context.Context) error {
	h.flushMu.Lock()
	defer h.flushMu.Unlock()

	batch := h.buffer.Drain()
	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	req := loki.NewRequest(batch, h.labels)

	err := h.sender.Send(ctx, req)
	if err != nil && h.opts.RetryOnce && ctx.Err() == nil {
		h.log.WithError(err).Warn("push failed, retrying once")
		h.metrics.IncRetries()
		if waitErr := h.waitRetry(ctx); waitErr == nil {
			err = h.sender.Send(ctx, req)
		}
	}

	if err != nil {
		h.metrics.IncFailedFlushes()
		if h.opts.RequeueOnFailure {
			dropped := h.buffer.Requeue(batch)
			h.metrics.AddEntriesRequeued(len(batch) - dropped)
			h.metrics.AddEntriesDropped(dropped)
		} else {
			h.metrics.AddEntriesLost(len(batch))
		}
		return fmt.Errorf("failed to flush %d entries: %w", len(batch), err)
	}

	h.metrics.AddFlush(len(batch))
	return nil
}

// waitRetry waits for the retry delay, or returns early with the context
// error once the flush timeout is up.
func (h *Handler) waitRetry(ctx context.Context) error {
	b, err := backoff.New(
		backoff.WithInitialDelay(h.opts.RetryDelay),
		backoff.WithExponentialLimit(h.opts.RetryDelay),
	)
	if err != nil {
		h.log.WithError(err).Debug("invalid retry backoff, retrying immediately")
		return ctx.Err()
	}

	timer := time.NewTimer(b.PeekDelay())
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs background flushes on the FlushInterval timer and whenever the
// buffer reaches BatchSize. Close stops them.
func (h *Handler) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		nCtx, cancel := context.WithCancel(ctx)
		h.stopCtx = cancel

		h.wg.Add(1)
		go h.flushLoop(nCtx)
	})
}

func (h *Handler) flushLoop(ctx context.Context) {
	defer h.wg.Done()

	var tick <-chan time.Time
	if h.opts.FlushInterval > 0 {
		ticker := time.NewTicker(h.opts.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
		case <-h.flushCh:
		case <-ctx.Done():
			return
		}

		// an in-flight push is allowed to finish when the loop is stopped
		if err := h.Flush(context.WithoutCancel(ctx)); err != nil {
			h.log.WithError(err).Error("background flush failed")
		}
	}
}

// Close stops background flushing, rejects further records and performs a
// final flush. Later calls return the result of the first one.
func (h *Handler) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		// waits for a concurrent Start and prevents later ones
		h.startOnce.Do(func() {})
		if h.stopCtx != nil {
			h.stopCtx()
			h.wg.Wait()
		}

		h.buffer.Close()
		h.closeErr = h.Flush(ctx)
	})
	return h.closeErr
}
