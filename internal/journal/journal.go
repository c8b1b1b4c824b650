// Package journal records ledger writes that could not be applied so an
// operator, or the next process start, can bring the ledger up to date.
package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"orderbridge/internal/ledger"
	"orderbridge/internal/orders"

	json "github.com/goccy/go-json"
)

// Op names the ledger write a record stands for.
type Op string

const (
	OpFinalizeCreated Op = "finalize_created"
	OpFinalizeFailed  Op = "finalize_failed"
)

// Record is one lost ledger write.
type Record struct {
	At                time.Time  `json:"at"`
	Op                Op         `json:"op"`
	Key               orders.Key `json:"key"`
	ExternalDocID     string     `json:"externalDocId,omitempty"`
	ExternalDocNumber string     `json:"externalDocNumber,omitempty"`
	Message           string     `json:"message,omitempty"`
	WriteError        string     `json:"writeError,omitempty"`
}

// Writer accepts journal records.
type Writer interface {
	Append(rec Record) error
}

// FileJournal appends records as JSON lines, syncing each one.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

// Open opens or creates the journal at path for appending.
func Open(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

// Append writes rec and syncs the file.
func (j *FileJournal) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	n, err := j.f.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("partial write: wrote %d of %d bytes", n, len(data))
	}
	return j.f.Sync()
}

// Close releases the file handle.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// ReadAll returns every record in the journal at path. A missing file
// yields no records.
func ReadAll(path string) (records []Record, err error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// Recover applies the journal at path to store and truncates it once every
// record has been handled. A failed-finalize record is skipped when the
// entry has since been picked up by a newer attempt, and any record whose
// key is no longer in the ledger is skipped.
func Recover(ctx context.Context, path string, store ledger.Store, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	records, err := ReadAll(path)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	applied := 0
	for _, rec := range records {
		ok, err := apply(ctx, store, rec)
		if errors.Is(err, ledger.ErrNotFound) {
			logger.Warn("journal record has no ledger entry; skipped", "op", rec.Op, "external_order_id", rec.Key.ExternalOrderID, "instance_id", rec.Key.InstanceID)
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("recover %s %s: %w", rec.Op, rec.Key, err)
		}
		if ok {
			applied++
		} else {
			logger.Info("journal record superseded", "op", rec.Op, "external_order_id", rec.Key.ExternalOrderID, "instance_id", rec.Key.InstanceID)
		}
	}

	if err := os.Truncate(path, 0); err != nil {
		return applied, err
	}
	return applied, nil
}

func apply(ctx context.Context, store ledger.Store, rec Record) (bool, error) {
	switch rec.Op {
	case OpFinalizeCreated:
		return true, store.FinalizeCreated(ctx, rec.Key, rec.ExternalDocID, rec.ExternalDocNumber)
	case OpFinalizeFailed:
		entry, err := store.Get(ctx, rec.Key)
		if err != nil {
			return false, err
		}
		if entry.Status != ledger.StatusProcessing || entry.ProcessingAt.After(rec.At) {
			return false, nil
		}
		return true, store.FinalizeFailed(ctx, rec.Key, rec.Message)
	default:
		return false, fmt.Errorf("unknown journal op %q", rec.Op)
	}
}
