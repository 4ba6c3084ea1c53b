//go:generate go run go.uber.org/mock/mockgen -source=punishment.go -destination=../mocks/mock_punishment_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"parley/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

type IPunishmentRepository interface {
	Create(p domain.Punishment) error
	Find(userID string, t domain.PunishmentType, now time.Time) (domain.Punishment, bool, error)
	DeleteAll(userID string, t domain.PunishmentType) error
	DeleteExpired(now time.Time) ([]domain.Punishment, error)
}

type PunishmentRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewPunishmentRepository(db *badger.DB, log *slog.Logger) PunishmentRepository {
	return PunishmentRepository{db: db, log: log}
}

type diskPunishment struct {
	ID        string     `cbor:"id"`
	UserID    string     `cbor:"user_id"`
	Type      string     `cbor:"type"`
	Reason    string     `cbor:"reason"`
	ExpiresAt *time.Time `cbor:"expires_at"`
	Issuer    string     `cbor:"issuer"`
	CreatedAt time.Time  `cbor:"created_at"`
}

const punishmentRoot = "punishment:"

// punishmentPrefix scopes a scan to one identity and type, e.g.
// "punishment:{userID}:mute:".
func punishmentPrefix(userID string, t domain.PunishmentType) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", punishmentRoot, userID, t))
}

func punishmentKey(p domain.Punishment) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", punishmentRoot, p.UserID, p.Type, p.ID))
}

func (r PunishmentRepository) Create(p domain.Punishment) error {
	bytes, err := cbor.Marshal(fromPunishment(p))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(punishmentKey(p), bytes)
	})
}

// Find returns the punishment of the given type still in force at now,
// if any. Expired records waiting for the sweep are skipped, so a caller
// never acts on a punishment that has already lapsed.
func (r PunishmentRepository) Find(userID string, t domain.PunishmentType, now time.Time) (domain.Punishment, bool, error) {
	var found domain.Punishment
	var ok bool

	prefix := punishmentPrefix(userID, t)
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskPunishment
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &disk)
			})
			if err != nil {
				return err
			}
			p := toPunishment(disk)
			if p.Active(now) {
				found, ok = p, true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return domain.Punishment{}, false, err
	}
	return found, ok, nil
}

// DeleteAll removes every record of one type for an identity. Idempotent.
func (r PunishmentRepository) DeleteAll(userID string, t domain.PunishmentType) error {
	prefix := punishmentPrefix(userID, t)
	return r.db.Update(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteExpired reaps every timed punishment whose expiry has passed and
// returns the deleted records so the caller can broadcast the matching
// un-punishment events. This is the durable replacement for in-process
// expiry timers: a restart loses nothing because expiry lives in the record.
func (r PunishmentRepository) DeleteExpired(now time.Time) ([]domain.Punishment, error) {
	var expired []domain.Punishment

	prefix := []byte(punishmentRoot)
	err := r.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskPunishment
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &disk)
			})
			if err != nil {
				return err
			}
			p := toPunishment(disk)
			if !p.Active(now) {
				expired = append(expired, p)
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func fromPunishment(p domain.Punishment) diskPunishment {
	return diskPunishment{
		ID:        p.ID,
		UserID:    p.UserID,
		Type:      string(p.Type),
		Reason:    p.Reason,
		ExpiresAt: p.ExpiresAt,
		Issuer:    p.Issuer,
		CreatedAt: p.CreatedAt,
	}
}

func toPunishment(d diskPunishment) domain.Punishment {
	return domain.Punishment{
		ID:        d.ID,
		UserID:    d.UserID,
		Type:      domain.PunishmentType(d.Type),
		Reason:    d.Reason,
		ExpiresAt: d.ExpiresAt,
		Issuer:    d.Issuer,
		CreatedAt: d.CreatedAt,
	}
}
