package tracelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/pkg/logger"
)

// Record is one append-only trace entry keyed by its timestamp
type Record struct {
	Timestamp time.Time           `json:"timestamp"`
	Text      string              `json:"text"`
	Result    *intent.ParseResult `json:"result"`
}

// Sink persists parse records
type Sink interface {
	Append(record *Record) error
}

// Config represents the file sink configuration
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// FileSink writes one JSON record per line to a rotating file
type FileSink struct {
	mu      sync.Mutex
	writer  *lumberjack.Logger
	encoder *json.Encoder
	logger  *logger.Logger
}

// NewFileSink creates the parent directory and opens a rotating JSONL writer
func NewFileSink(config Config, logger *logger.Logger) (*FileSink, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("trace sink path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	maxSize := config.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 64
	}

	writer := &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    maxSize, // MB
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}

	return &FileSink{
		writer:  writer,
		encoder: json.NewEncoder(writer),
		logger:  logger.Named("trace-sink"),
	}, nil
}

// Append writes the record as a single line
func (s *FileSink) Append(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.Encode(record); err != nil {
		return fmt.Errorf("failed to append trace record: %w", err)
	}

	s.logger.Debug("Appended trace record",
		logger.String("utterance_id", record.Result.UtteranceID),
		logger.Time("timestamp", record.Timestamp))
	return nil
}

// Close closes the underlying file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}

// MultiSink fans a record out to several sinks, returning the first error
type MultiSink []Sink

// Append implements Sink
func (m MultiSink) Append(record *Record) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Append(record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
