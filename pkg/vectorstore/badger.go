package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const docKeyPrefix = "doc:"

// BadgerStore is an embedded vector index on BadgerDB. Searches scan every
// record, so it targets the same corpus sizes as MemoryStore but survives
// restarts.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// badgerLogger adapts slog to the badger.Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Info(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// NewBadger opens a Badger-backed store at path. An empty path opens an
// in-memory database.
func NewBadger(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLogger{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func docKey(id string) []byte {
	return []byte(docKeyPrefix + id)
}

// Add upserts documents in a single write transaction.
func (s *BadgerStore) Add(ctx context.Context, docs []Document) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range docs {
			EnsureID(&docs[i])
			if err := txn.Set(docKey(docs[i].ID), marshalDocument(docs[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search scans all documents, scores them against the query vector, and
// returns the top k by similarity.
func (s *BadgerStore) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	var matches []Match

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docKeyPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var doc Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = unmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			matches = append(matches, Match{Document: doc, Score: Cosine(vector, doc.Vector)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Delete removes documents by ID.
func (s *BadgerStore) Delete(ctx context.Context, ids []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(docKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
