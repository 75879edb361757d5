package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"github.com/sirupsen/logrus"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
)

// TailService discovers *.log files under a root and emits every new line
// as a record.
type TailService struct {
	config    Config
	emitter   logging.Emitter
	fileQueue chan string
	workersWg sync.WaitGroup
	scanWg    sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	metrics   *TailMetrics
	log       logrus.FieldLogger

	activeMu sync.Mutex
	active   map[string]struct{}
	seen     map[string]struct{}
	// byte offset up to which each released file has been emitted
	offsets map[string]int64
}

type Config struct {
	LogRootPath   string
	ScanInterval  time.Duration
	Workers       int
	FileQueueSize int
	// If > 0, stop tailing a file after this period without new lines
	FileIdleTimeout time.Duration
	// FromStart reads files from the beginning instead of only new lines
	FromStart bool
	// Poll watches files by polling instead of inotify
	Poll bool
	// DefaultLevel is used for lines without a recognizable level
	DefaultLevel string
	Logger       logrus.FieldLogger
}

func (c *Config) resolve() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 30 * time.Second
	}
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.FileQueueSize < 1 {
		c.FileQueueSize = 50
	}
	if c.DefaultLevel == "" {
		c.DefaultLevel = "INFO"
	}
	if c.Logger == nil {
		c.Logger = logging.InternalLogger()
	}
}

// NewTailService creates Workers + 1 goroutines on Start().
func NewTailService(ctx context.Context, config Config, emitter logging.Emitter) *TailService {
	config.resolve()
	nCtx, cancel := context.WithCancel(ctx)

	return &TailService{
		config:    config,
		emitter:   emitter,
		fileQueue: make(chan string, config.FileQueueSize),
		ctx:       nCtx,
		cancel:    cancel,
		metrics:   &TailMetrics{FilesQueueCapacity: config.FileQueueSize},
		log:       config.Logger.WithField("component", "tailer"),
		active:    make(map[string]struct{}),
		seen:      make(map[string]struct{}),
		offsets:   make(map[string]int64),
	}
}

func (s *TailService) Metrics() TailMetrics { return s.metrics.GetMetricsStamp() }

func (s *TailService) Start() {
	s.log.WithFields(logrus.Fields{
		"root":       s.config.LogRootPath,
		"workers":    s.config.Workers,
		"queue_size": s.config.FileQueueSize,
	}).Info("starting tail service")

	s.workersWg.Add(s.config.Workers)
	for i := 0; i < s.config.Workers; i++ {
		go s.worker(i)
	}

	s.scanWg.Add(1)
	go s.scanner()
}

// Stop cancels tailing and waits for all goroutines. Lines already emitted
// stay in the handler's buffer.
func (s *TailService) Stop() {
	s.log.Info("stopping tail service")
	s.cancel()

	s.scanWg.Wait()
	close(s.fileQueue)
	s.workersWg.Wait()

	s.log.Info("tail service stopped")
}

func (s *TailService) worker(id int) {
	defer s.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("worker", id).Errorf("worker panicked: %v", r)
		}
	}()

	for {
		select {
		case filePath, ok := <-s.fileQueue:
			if !ok {
				return
			}
			s.metrics.DecQueuedFiles()
			offset := s.processFile(s.ctx, filePath)
			s.release(filePath, offset)

		case <-s.ctx.Done():
			return
		}
	}
}

// processFile tails filePath until it goes idle or the service stops, and
// returns the offset just past the last line it consumed.
func (s *TailService) processFile(ctx context.Context, filePath string) int64 {
	s.metrics.IncFilesTailing()
	defer s.metrics.DecFilesTailing()

	offset := s.startOffset(filePath)

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     s.config.Poll,
		Location: &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		s.log.WithError(err).WithField("file", filePath).Error("failed to tail file")
		s.metrics.IncFilesFailed()
		return offset
	}
	defer t.Cleanup()
	defer t.Stop()

	checkEvery := time.Second
	if s.config.FileIdleTimeout > 0 && s.config.FileIdleTimeout < checkEvery {
		checkEvery = s.config.FileIdleTimeout
	}
	checkTicker := time.NewTicker(checkEvery)
	defer checkTicker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return offset
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				s.log.WithError(line.Err).WithField("file", filePath).Warn("error reading file")
				continue
			}

			// lines reach us without their trailing newline
			offset += int64(len(line.Text)) + 1
			s.emitLine(line.Text, line.Time)
			lastActivity = time.Now()

		case <-checkTicker.C:
			// waking up from blocking line reading to check the idle timeout
			if s.config.FileIdleTimeout > 0 && time.Since(lastActivity) > s.config.FileIdleTimeout {
				s.log.WithField("file", filePath).Debug("file idle, releasing worker")
				s.metrics.IncFilesIdle()
				return offset
			}
		case <-ctx.Done():
			return offset
		}
	}
}

// startOffset resumes a file where it was released. A file seen for the first
// time starts at its beginning or its current end, depending on FromStart. A
// file that shrank below the stored offset was truncated or replaced and is
// read again from the start.
func (s *TailService) startOffset(filePath string) int64 {
	s.activeMu.Lock()
	offset, resumed := s.offsets[filePath]
	s.activeMu.Unlock()

	info, err := os.Stat(filePath)
	if err != nil {
		return offset
	}

	switch {
	case !resumed && s.config.FromStart:
		return 0
	case !resumed:
		return info.Size()
	case info.Size() < offset:
		s.log.WithField("file", filePath).Info("file truncated, reading from start")
		return 0
	}
	s.metrics.IncFilesResumed()
	return offset
}

func (s *TailService) emitLine(text string, at time.Time) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}

	err := s.emitter.Emit(logging.BasicRecord{
		Time:  logging.Seconds(at),
		Level: DetectLevel(text, s.config.DefaultLevel),
		Text:  text,
	})
	if err != nil {
		s.metrics.IncLinesFailed()
		s.log.WithError(err).Debug("failed to emit line")
		return
	}
	s.metrics.IncLinesRead()
}

func (s *TailService) scanner() {
	defer s.scanWg.Done()

	s.scanFiles()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanFiles()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *TailService) scanFiles() {
	files, err := s.discoverLogFiles()
	if err != nil {
		s.log.WithError(err).Error("error discovering log files")
		return
	}

	for _, file := range files {
		if !s.claim(file) {
			continue
		}
		select {
		case s.fileQueue <- file:
			s.metrics.IncQueuedFiles()
		case <-s.ctx.Done():
			s.unclaim(file)
			return
		default:
			s.unclaim(file)
			s.log.WithFields(logrus.Fields{
				"file":  file,
				"queue": len(s.fileQueue),
			}).Warn("file queue full, skipping")
		}
	}
}

// claim marks file as handled by a worker; it fails when it already is.
func (s *TailService) claim(file string) bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	if _, ok := s.seen[file]; !ok {
		s.seen[file] = struct{}{}
		s.metrics.IncFilesDiscovered()
	}
	if _, busy := s.active[file]; busy {
		return false
	}
	s.active[file] = struct{}{}
	return true
}

// release hands file back to the scanner, remembering how far it was read.
func (s *TailService) release(file string, offset int64) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	s.offsets[file] = offset
	delete(s.active, file)
}

func (s *TailService) unclaim(file string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	delete(s.active, file)
}

func (s *TailService) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.Walk(s.config.LogRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.log.WithError(err).WithField("path", path).Debug("error accessing path")
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}

var levelAliases = map[string]string{
	"CRITICAL": "CRITICAL",
	"FATAL":    "CRITICAL",
	"ERROR":    "ERROR",
	"ERR":      "ERROR",
	"WARNING":  "WARNING",
	"WARN":     "WARNING",
	"INFO":     "INFO",
	"DEBUG":    "DEBUG",
	"TRACE":    "DEBUG",
}

// DetectLevel looks for a level keyword among the first words of line.
func DetectLevel(line, fallback string) string {
	words := strings.FieldsFunc(line, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z')
	})
	if len(words) > 4 {
		words = words[:4]
	}

	for _, w := range words {
		if level, ok := levelAliases[strings.ToUpper(w)]; ok {
			return level
		}
	}
	return fallback
}
