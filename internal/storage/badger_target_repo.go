package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// targetKeyPrefix отделяет снимки от прочих ключей базы
var targetKeyPrefix = []byte("target:")

// BadgerTargetRepo хранит снимки целей во встроенной BadgerDB.
// Переживает перезапуск процесса без внешних сервисов.
type BadgerTargetRepo struct {
	db      *badger.DB
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerTargetRepo открывает базу по пути path. При пустом path база живёт в памяти.
func NewBadgerTargetRepo(path string) (*BadgerTargetRepo, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerTargetRepo{db: db, isReady: true}, nil
}

func badgerKey(unitID uint64) []byte {
	key := make([]byte, len(targetKeyPrefix)+8)
	copy(key, targetKeyPrefix)
	binary.BigEndian.PutUint64(key[len(targetKeyPrefix):], unitID)
	return key
}

func (r *BadgerTargetRepo) ready() error {
	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return nil
}

// Save сохраняет снимок юнита
func (r *BadgerTargetRepo) Save(ctx context.Context, snap TargetSnapshot) error {
	return r.BatchSave(ctx, []TargetSnapshot{snap})
}

// Load загружает снимок юнита
func (r *BadgerTargetRepo) Load(ctx context.Context, unitID uint64) (TargetSnapshot, bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.ready(); err != nil {
		return TargetSnapshot{}, false, err
	}
	if err := checkContext(ctx); err != nil {
		return TargetSnapshot{}, false, err
	}

	var snap TargetSnapshot
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(unitID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return TargetSnapshot{}, false, nil
	}
	if err != nil {
		return TargetSnapshot{}, false, fmt.Errorf("ошибка загрузки снимка юнита %d: %w", unitID, err)
	}
	return snap, true, nil
}

// Delete удаляет снимок юнита
func (r *BadgerTargetRepo) Delete(ctx context.Context, unitID uint64) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.ready(); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		key := badgerKey(unitID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: юнит %d", ErrNotFound, unitID)
			}
			return err
		}
		return txn.Delete(key)
	})
}

// BatchSave записывает снимки одной транзакцией
func (r *BadgerTargetRepo) BatchSave(ctx context.Context, snaps []TargetSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	if err := validateBatch(snaps); err != nil {
		return err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.ready(); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		for _, snap := range snaps {
			data, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("ошибка сериализации снимка юнита %d: %w", snap.UnitID, err)
			}
			if err := txn.Set(badgerKey(snap.UnitID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count возвращает количество снимков (обход ключей по префиксу)
func (r *BadgerTargetRepo) Count() (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.ready(); err != nil {
		return 0, err
	}

	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(targetKeyPrefix); it.ValidForPrefix(targetKeyPrefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close закрывает базу
func (r *BadgerTargetRepo) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}

	r.isReady = false
	return r.db.Close()
}
