// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint persists per-file processing state and partial
// aggregates so an interrupted run resumes without reprocessing
// completed files.
//
// =============================================================================
// Design
// =============================================================================
//
// Each processed file gets one durable record keyed by the SHA-256 of
// its corpus-relative path:
//
//	usage/file/v1/{sha256(path)}  →  gob-encoded Record
//
// BadgerDB gives the two properties the store needs without any
// application-level locking:
//
//  1. Per-key atomic replace: a record write is one transaction. A crash
//     mid-commit leaves the previous committed record (or no record)
//     intact, for this file and every other file.
//  2. Concurrent writers on different keys: workers checkpoint their
//     files independently; there is no global lock across the corpus.
//
// Resume keys on the content fingerprint stored inside the record: a
// file whose fingerprint changed since the last run is reprocessed and
// its record replaced, so each (file, fingerprint) pair contributes to
// the final aggregate exactly once.
package checkpoint

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/lars-reimann/python-analyzer/services/usage/aggregate"
)

// keyPrefix namespaces and versions all checkpoint records.
const keyPrefix = "usage/file/v1/"

// writeRetries bounds checkpoint write attempts. When retries exhaust
// the file is left unrecorded and reprocessed on the next run — never a
// reason to abort the run or to touch other files' records.
const writeRetries = 3

// retryBackoff is the pause between write attempts.
const retryBackoff = 50 * time.Millisecond

// ErrClosed is returned for operations on a closed store.
var ErrClosed = errors.New("checkpoint store is closed")

// Record is the durable per-file checkpoint.
type Record struct {
	// Path is the corpus-relative file path.
	Path string

	// Fingerprint is the hex SHA-256 of the file content at processing
	// time.
	Fingerprint string

	// RunID identifies the run that produced the record.
	RunID string

	// ProcessedAtMilli is the completion time (Unix milliseconds UTC).
	ProcessedAtMilli int64

	// Aggregate is the file's partial aggregate.
	Aggregate *aggregate.PartialAggregate
}

// Config configures the store's BadgerDB instance.
type Config struct {
	// Path is the directory the store owns exclusively for the run
	// (and across resumed runs). Ignored when InMemory is set.
	Path string

	// InMemory runs BadgerDB without disk persistence. For tests.
	InMemory bool
}

// DefaultConfig returns a disk-backed config rooted at path.
func DefaultConfig(path string) Config {
	return Config{Path: path}
}

// InMemoryConfig returns a config for an ephemeral in-memory store.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store is a BadgerDB-backed checkpoint store.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions are
// per-goroutine; conflicting writes to the same file key serialize, and
// writes to different files proceed concurrently.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the checkpoint database.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db at %q: %w", cfg.Path, err)
	}
	return &Store{db: db, logger: slog.Default()}, nil
}

// Close closes the underlying database. The store is unusable afterwards.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// RecordProcessed durably persists a file's checkpoint, replacing any
// prior record for that path.
//
// Description:
//
//	The write is a single transaction: atomic with respect to process
//	crash. Transient failures are retried writeRetries times with a
//	short backoff; on exhaustion the error is returned and the caller
//	defers the file to the next run. Other files' records are never
//	affected.
func (s *Store) RecordProcessed(ctx context.Context, path, fingerprint, runID string, agg *aggregate.PartialAggregate) error {
	if s.db == nil {
		return ErrClosed
	}

	rec := Record{
		Path:             path,
		Fingerprint:      fingerprint,
		RunID:            runID,
		ProcessedAtMilli: time.Now().UnixMilli(),
		Aggregate:        agg,
	}
	raw, err := encodeRecord(&rec)
	if err != nil {
		return fmt.Errorf("encode checkpoint for %q: %w", path, err)
	}

	key := fileKey(path)
	var lastErr error
	for attempt := 1; attempt <= writeRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, raw)
		})
		if lastErr == nil {
			s.logger.Debug("checkpoint: recorded",
				slog.String("file", path),
				slog.Int("attempt", attempt))
			return nil
		}
		s.logger.Warn("checkpoint: write failed",
			slog.String("file", path),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
		time.Sleep(retryBackoff)
	}
	return fmt.Errorf("checkpoint write for %q exhausted %d retries: %w", path, writeRetries, lastErr)
}

// IsProcessed reports whether a durable record exists for the file with
// a matching fingerprint. A record with a different fingerprint means
// the file changed since it was checkpointed and must be reprocessed.
func (s *Store) IsProcessed(ctx context.Context, path, fingerprint string) (bool, error) {
	if s.db == nil {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var matched bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get checkpoint key: %w", err)
		}
		return item.Value(func(val []byte) error {
			rec, decErr := decodeRecord(val)
			if decErr != nil {
				// A corrupt record is treated as absent; the file is
				// simply reprocessed.
				s.logger.Warn("checkpoint: corrupt record ignored",
					slog.String("file", path),
					slog.String("error", decErr.Error()))
				return nil
			}
			matched = rec.Fingerprint == fingerprint
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("checkpoint lookup for %q: %w", path, err)
	}
	return matched, nil
}

// LoadAll returns every durably recorded checkpoint.
func (s *Store) LoadAll(ctx context.Context) ([]*Record, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	var records []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				rec, decErr := decodeRecord(val)
				if decErr != nil {
					s.logger.Warn("checkpoint: corrupt record skipped during load",
						slog.String("error", decErr.Error()))
					return nil
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoint load: %w", err)
	}

	s.logger.Debug("checkpoint: loaded", slog.Int("records", len(records)))
	return records, nil
}

// fileKey builds the BadgerDB key for a corpus-relative path. Hashing
// keeps keys fixed-length and path-separator-agnostic.
func fileKey(path string) []byte {
	sum := sha256.Sum256([]byte(path))
	return []byte(keyPrefix + hex.EncodeToString(sum[:]))
}

// encodeRecord serializes a Record using encoding/gob.
func encodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeRecord deserializes a Record from gob-encoded bytes.
func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return &rec, nil
}
