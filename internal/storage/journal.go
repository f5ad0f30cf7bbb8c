package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Journal appends JSON lines asynchronously to date-organized files under
// baseDir/{date}/{name}.jsonl. Records that could not be saved to the
// primary store end up here.
type Journal struct {
	baseDir     string
	name        string
	maxSizeMB   int
	writeCh     chan any
	done        chan struct{}
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
	now         func() time.Time
}

func NewJournal(baseDir, name string, bufferSize, maxSizeMB int) *Journal {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	j := &Journal{
		baseDir:   baseDir,
		name:      name,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j
}

// Write queues a record. It never blocks; a full buffer drops the record.
func (j *Journal) Write(record any) error {
	select {
	case <-j.done:
		return fmt.Errorf("journal is closed")
	default:
	}
	select {
	case j.writeCh <- record:
		return nil
	default:
		slog.Warn("Journal buffer full, dropping record", "journal", j.name)
		return fmt.Errorf("buffer full")
	}
}

// Close flushes pending records and closes the current file.
func (j *Journal) Close() error {
	close(j.done)
	j.wg.Wait()

	// Drain what the loop left behind.
	for {
		select {
		case record := <-j.writeCh:
			j.writeRecord(record)
			continue
		default:
		}
		break
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger != nil {
		return j.logger.Close()
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case record := <-j.writeCh:
			j.writeRecord(record)
		case <-j.done:
			return
		}
	}
}

func (j *Journal) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal journal record", "error", err, "journal", j.name)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := j.now().UTC().Format(time.DateOnly)
	if date != j.currentDate || j.logger == nil {
		if !j.rotateForDate(date) {
			return
		}
	}
	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("Failed to write journal record", "error", err, "journal", j.name)
	}
}

func (j *Journal) rotateForDate(date string) bool {
	if j.logger != nil {
		j.logger.Close()
		j.logger = nil
	}
	dir := filepath.Join(j.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("Failed to create journal directory", "error", err, "dir", dir)
		return false
	}
	filename := filepath.Join(dir, j.name+".jsonl")
	j.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		LocalTime:  false,
	}
	j.currentDate = date
	slog.Info("Opened journal file", "file", filename)
	return true
}
