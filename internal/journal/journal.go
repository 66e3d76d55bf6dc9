// Package journal persists published events in pebble so they can be
// replayed from any sequence number.
package journal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/events"
)

// DefaultLimit caps Range when no limit is given.
const DefaultLimit = 100

var eventPrefix = []byte("evt:")

// Journal is an append-only event log keyed by sequence number.
type Journal struct {
	db *pebble.DB
}

// Open opens the journal at dir. An empty dir keeps the journal in memory.
// Pebble's own log lines go to logger.
func Open(dir string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := &pebble.Options{Logger: pebbleLogger{logger: logger.With(slog.String("component", "pebble"))}}
	if dir == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// pebbleLogger adapts a slog.Logger to pebble.Logger.
type pebbleLogger struct {
	logger *slog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// Fatalf logs and exits, as pebble expects Fatalf not to return.
func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.db.Close()
}

func eventKey(seq uint64) []byte {
	k := make([]byte, len(eventPrefix)+8)
	copy(k, eventPrefix)
	binary.BigEndian.PutUint64(k[len(eventPrefix):], seq)
	return k
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Append stores e under its sequence number.
func (j *Journal) Append(_ context.Context, e domain.Event) error {
	if e.Seq == 0 {
		return errors.New("journal: event has no sequence number")
	}
	data, err := events.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := j.db.Set(eventKey(e.Seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// Deliver implements events.Sink.
func (j *Journal) Deliver(ctx context.Context, e domain.Event) error {
	return j.Append(ctx, e)
}

// Get returns the event with sequence number seq.
func (j *Journal) Get(seq uint64) (domain.Event, bool, error) {
	data, closer, err := j.db.Get(eventKey(seq))
	if err == pebble.ErrNotFound {
		return domain.Event{}, false, nil
	}
	if err != nil {
		return domain.Event{}, false, fmt.Errorf("get event: %w", err)
	}
	defer closer.Close()

	e, err := events.Unmarshal(data)
	if err != nil {
		return domain.Event{}, false, fmt.Errorf("unmarshal event: %w", err)
	}
	return e, true, nil
}

// Range returns up to limit events with sequence number >= from, ascending.
func (j *Journal) Range(from uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(from),
		UpperBound: keyUpperBound(eventPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	defer iter.Close()

	out := make([]domain.Event, 0, min(limit, 64))
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		e, err := events.Unmarshal(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// LastSeq returns the highest stored sequence number, or 0 when empty.
func (j *Journal) LastSeq() (uint64, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: eventPrefix,
		UpperBound: keyUpperBound(eventPrefix),
	})
	if err != nil {
		return 0, fmt.Errorf("iterate events: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	key := iter.Key()
	if len(key) != len(eventPrefix)+8 {
		return 0, fmt.Errorf("malformed event key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(eventPrefix):]), nil
}
