package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"go.uber.org/zap"
)

const (
	counterPrefix = "tally/counter/"
	globalPrefix  = "tally/global/"
)

type checkpoint struct {
	Records []tally.Record `json:"records"`
}

// Store keeps actor checkpoints in an embedded badger database, one key per actor.
type Store struct {
	db *badger.DB
}

// Open opens dir, or an in-memory database when dir is empty.
func Open(dir string, log *zap.Logger) (*Store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(newLogger(log)).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func counterKey(questionID, countryCode string) []byte {
	return []byte(counterPrefix + questionID + "/" + countryCode)
}

func globalKey(questionID string) []byte {
	return []byte(globalPrefix + questionID)
}

func (s *Store) LoadCounter(_ context.Context, questionID, countryCode string) (tally.CounterState, error) {
	records, err := s.get(counterKey(questionID, countryCode))
	if err != nil {
		return tally.CounterState{}, err
	}
	return tally.ExpandCounter(records), nil
}

func (s *Store) SaveCounter(_ context.Context, questionID, countryCode string, state tally.CounterState) error {
	return s.put(counterKey(questionID, countryCode), tally.FlattenCounter(questionID, countryCode, state, time.Now().UTC()))
}

func (s *Store) LoadGlobal(_ context.Context, questionID string) (tally.GlobalState, error) {
	records, err := s.get(globalKey(questionID))
	if err != nil {
		return tally.GlobalState{}, err
	}
	return tally.ExpandGlobal(records), nil
}

func (s *Store) SaveGlobal(_ context.Context, questionID string, state tally.GlobalState) error {
	return s.put(globalKey(questionID), tally.FlattenGlobal(questionID, state))
}

func (s *Store) DeleteQuestion(_ context.Context, questionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(globalKey(questionID)); err != nil {
			return err
		}
		prefix := []byte(counterPrefix + questionID + "/")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var keys [][]byte
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) get(key []byte) ([]tally.Record, error) {
	var cp checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cp.Records, nil
}

func (s *Store) put(key []byte, records []tally.Record) error {
	raw, err := json.Marshal(checkpoint{Records: records})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
}

var _ tally.StateStore = (*Store)(nil)
