//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"parley/domain"
	"parley/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

type ISessionRepository interface {
	Create(session domain.Session) error
	Find(token string) (domain.Session, error)
	Invalidate(token string) error
	InvalidateAllForUser(userID string) error
}

type SessionRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewSessionRepository(db *badger.DB, log *slog.Logger) SessionRepository {
	return SessionRepository{db: db, log: log}
}

// diskSession is the stored shape of a session record. Revoked sessions
// keep their record with Valid=false so an unexpired token can never be
// replayed after logout, kick or ban.
type diskSession struct {
	Token      string    `cbor:"token"`
	UserID     string    `cbor:"user_id"`
	ExpiresAt  time.Time `cbor:"expires_at"`
	Valid      bool      `cbor:"valid"`
	DeviceInfo string    `cbor:"device_info"`
	IPAddress  string    `cbor:"ip_address"`
	CreatedAt  time.Time `cbor:"created_at"`
}

func sessionKey(token string) []byte {
	return []byte("session:" + token)
}

// userSessionKey is the secondary index used to revoke every session of
// one identity without scanning the whole keyspace.
func userSessionKey(userID, token string) []byte {
	return []byte("session_user:" + userID + ":" + token)
}

func (r SessionRepository) Create(session domain.Session) error {
	bytes, err := cbor.Marshal(fromSession(session))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(sessionKey(session.Token), bytes); err != nil {
			return err
		}
		return txn.Set(userSessionKey(session.UserID, session.Token), nil)
	})
}

// Find returns the session record for a token, valid or not. Callers
// re-check Valid and ExpiresAt themselves; every admission decision
// re-reads the store rather than trusting a cache.
func (r SessionRepository) Find(token string) (domain.Session, error) {
	var disk diskSession
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(token))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &disk)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	return toSession(disk), nil
}

// Invalidate flips a single session to Valid=false. Idempotent: revoking
// a missing or already revoked token succeeds without effect.
func (r SessionRepository) Invalidate(token string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return invalidateInTxn(txn, token)
	})
}

// InvalidateAllForUser revokes every session of one identity via the
// secondary index. Used by the ban path before any live-connection
// side effect is triggered.
func (r SessionRepository) InvalidateAllForUser(userID string) error {
	prefix := []byte("session_user:" + userID + ":")
	return r.db.Update(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var tokens []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			tokens = append(tokens, string(it.Item().Key()[len(prefix):]))
		}
		// Writes happen after the iterator is done with the prefix scan.
		for _, token := range tokens {
			if err := invalidateInTxn(txn, token); err != nil {
				return err
			}
		}
		return nil
	})
}

func invalidateInTxn(txn *badger.Txn, token string) error {
	item, err := txn.Get(sessionKey(token))
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	var disk diskSession
	if err := item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &disk)
	}); err != nil {
		return err
	}

	disk.Valid = false
	bytes, err := cbor.Marshal(disk)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(sessionKey(token), bytes)
}

func fromSession(s domain.Session) diskSession {
	return diskSession{
		Token:      s.Token,
		UserID:     s.UserID,
		ExpiresAt:  s.ExpiresAt,
		Valid:      s.Valid,
		DeviceInfo: s.DeviceInfo,
		IPAddress:  s.IPAddress,
		CreatedAt:  s.CreatedAt,
	}
}

func toSession(d diskSession) domain.Session {
	return domain.Session{
		Token:      d.Token,
		UserID:     d.UserID,
		ExpiresAt:  d.ExpiresAt,
		Valid:      d.Valid,
		DeviceInfo: d.DeviceInfo,
		IPAddress:  d.IPAddress,
		CreatedAt:  d.CreatedAt,
	}
}
