// Package kv stores reconciliation state in BadgerDB.
//
// Key layout:
//
//	session/<id>                          -> JSON(store.Session)
//	match/<id>                            -> JSON(store.Match)
//	session-match/<session>/<rule>/<id>   -> empty
//	discrepancy/<id>                      -> JSON(store.Discrepancy)
//	match-discrepancy/<match>             -> discrepancy id
//	session-discrepancy/<session>/<id>    -> empty
//	audit/<session>/<unix nanos>/<id>     -> JSON(store.AuditEntry)
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/de-tools/recon-atlas/pkg/adapters"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/models/store"
	recon "github.com/de-tools/recon-atlas/pkg/store"
)

type Options struct {
	Dir string
	// InMemory keeps everything in memory; Dir is ignored.
	InMemory bool
}

// Open opens a Badger database with the given options.
func Open(opts Options) (*badger.DB, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Dir, err)
	}
	return db, nil
}

type txnKey struct{}

type kvStore struct {
	db *badger.DB
}

func NewStore(db *badger.DB) (recon.Store, error) {
	if db == nil {
		return nil, fmt.Errorf("badger database is nil")
	}
	return &kvStore{db: db}, nil
}

func (s *kvStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txnKey{}).(*badger.Txn); ok {
		return fn(ctx)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(context.WithValue(ctx, txnKey{}, txn))
	})
}

func (s *kvStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn, ok := ctx.Value(txnKey{}).(*badger.Txn); ok {
		return fn(txn)
	}
	return s.db.Update(fn)
}

func (s *kvStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn, ok := ctx.Value(txnKey{}).(*badger.Txn); ok {
		return fn(txn)
	}
	return s.db.View(fn)
}

func sessionKey(id string) []byte     { return []byte("session/" + id) }
func matchKey(id string) []byte       { return []byte("match/" + id) }
func discrepancyKey(id string) []byte { return []byte("discrepancy/" + id) }
func matchDiscrepancyKey(matchID string) []byte {
	return []byte("match-discrepancy/" + matchID)
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

// scanPrefix calls fn with the key and a copy of the value of every entry under prefix.
func scanPrefix(txn *badger.Txn, prefix string, fn func(key string, val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(string(item.Key()), val); err != nil {
			return err
		}
	}
	return nil
}

func (s *kvStore) CreateSession(ctx context.Context, session *domain.Session) error {
	row, err := adapters.MapDomainSessionToStore(session)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		found, err := exists(txn, sessionKey(row.ID))
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("session %s already exists", row.ID)
		}
		return putJSON(txn, sessionKey(row.ID), row)
	})
}

func (s *kvStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var row store.Session
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, sessionKey(id), &row)
	})
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return adapters.MapStoreSessionToDomain(&row)
}

func (s *kvStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	row, err := adapters.MapDomainSessionToStore(session)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		found, err := exists(txn, sessionKey(row.ID))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("session %s: %w", row.ID, domain.ErrNotFound)
		}
		return putJSON(txn, sessionKey(row.ID), row)
	})
}

func (s *kvStore) FindSessions(ctx context.Context, propertyID, periodID string, statuses ...domain.SessionStatus) ([]*domain.Session, error) {
	wanted := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		wanted[string(st)] = true
	}

	var rows []store.Session
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, "session/", func(_ string, val []byte) error {
			var row store.Session
			if err := json.Unmarshal(val, &row); err != nil {
				return err
			}
			if row.PropertyID != propertyID || row.PeriodID != periodID {
				return nil
			}
			if len(wanted) > 0 && !wanted[row.Status] {
				return nil
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	out := make([]*domain.Session, 0, len(rows))
	for i := range rows {
		session, err := adapters.MapStoreSessionToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *kvStore) SaveMatches(ctx context.Context, sessionID string, matches []*domain.Match) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		found, err := exists(txn, sessionKey(sessionID))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}

		prefix := "session-match/" + sessionID + "/"
		existing := 0
		if err := scanPrefix(txn, prefix, func(string, []byte) error {
			existing++
			return nil
		}); err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("session %s already has %d matches", sessionID, existing)
		}

		for _, m := range matches {
			if m.SessionID != sessionID {
				return fmt.Errorf("match %s belongs to session %s, not %s", m.ID, m.SessionID, sessionID)
			}
			if err := putJSON(txn, matchKey(m.ID), adapters.MapDomainMatchToStore(m)); err != nil {
				return err
			}
			if err := txn.Set([]byte(prefix+m.RuleCode+"/"+m.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *kvStore) ListMatches(ctx context.Context, sessionID string) ([]*domain.Match, error) {
	out := make([]*domain.Match, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, "session-match/"+sessionID+"/", func(key string, _ []byte) error {
			id := key[strings.LastIndex(key, "/")+1:]
			var row store.Match
			if err := getJSON(txn, matchKey(id), &row); err != nil {
				return fmt.Errorf("match %s: %w", id, err)
			}
			m, err := adapters.MapStoreMatchToDomain(&row)
			if err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return out, nil
}

func (s *kvStore) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	var row store.Match
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, matchKey(id), &row)
	})
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", id, err)
	}
	return adapters.MapStoreMatchToDomain(&row)
}

func (s *kvStore) UpdateMatchStatus(ctx context.Context, id string, status domain.MatchStatus) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var row store.Match
		if err := getJSON(txn, matchKey(id), &row); err != nil {
			return fmt.Errorf("match %s: %w", id, err)
		}
		row.Status = string(status)
		return putJSON(txn, matchKey(id), row)
	})
}

func (s *kvStore) SaveDiscrepancies(ctx context.Context, discrepancies []*domain.Discrepancy) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		for _, d := range discrepancies {
			found, err := exists(txn, matchDiscrepancyKey(d.MatchID))
			if err != nil {
				return err
			}
			if found {
				continue
			}
			if err := putJSON(txn, discrepancyKey(d.ID), adapters.MapDomainDiscrepancyToStore(d)); err != nil {
				return err
			}
			if err := txn.Set(matchDiscrepancyKey(d.MatchID), []byte(d.ID)); err != nil {
				return err
			}
			if err := txn.Set([]byte("session-discrepancy/"+d.SessionID+"/"+d.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *kvStore) ListDiscrepancies(ctx context.Context, sessionID string) ([]*domain.Discrepancy, error) {
	out := make([]*domain.Discrepancy, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, "session-discrepancy/"+sessionID+"/", func(key string, _ []byte) error {
			id := key[strings.LastIndex(key, "/")+1:]
			var row store.Discrepancy
			if err := getJSON(txn, discrepancyKey(id), &row); err != nil {
				return fmt.Errorf("discrepancy %s: %w", id, err)
			}
			d, err := adapters.MapStoreDiscrepancyToDomain(&row)
			if err != nil {
				return err
			}
			out = append(out, d)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list discrepancies: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *kvStore) GetDiscrepancy(ctx context.Context, id string) (*domain.Discrepancy, error) {
	var row store.Discrepancy
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, discrepancyKey(id), &row)
	})
	if err != nil {
		return nil, fmt.Errorf("discrepancy %s: %w", id, err)
	}
	return adapters.MapStoreDiscrepancyToDomain(&row)
}

func (s *kvStore) GetDiscrepancyByMatch(ctx context.Context, matchID string) (*domain.Discrepancy, error) {
	var row store.Discrepancy
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(matchDiscrepancyKey(matchID))
		if err == badger.ErrKeyNotFound {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, discrepancyKey(string(id)), &row)
	})
	if err != nil {
		return nil, fmt.Errorf("discrepancy for match %s: %w", matchID, err)
	}
	return adapters.MapStoreDiscrepancyToDomain(&row)
}

func (s *kvStore) UpdateDiscrepancy(ctx context.Context, d *domain.Discrepancy) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		found, err := exists(txn, discrepancyKey(d.ID))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("discrepancy %s: %w", d.ID, domain.ErrNotFound)
		}
		return putJSON(txn, discrepancyKey(d.ID), adapters.MapDomainDiscrepancyToStore(d))
	})
}

func (s *kvStore) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	key := fmt.Sprintf("audit/%s/%020d/%s", entry.SessionID, entry.CreatedAt.UnixNano(), entry.ID)
	return s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, []byte(key), adapters.MapDomainAuditToStore(entry))
	})
}

func (s *kvStore) ListAudit(ctx context.Context, sessionID string) ([]*domain.AuditEntry, error) {
	out := make([]*domain.AuditEntry, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, "audit/"+sessionID+"/", func(_ string, val []byte) error {
			var row store.AuditEntry
			if err := json.Unmarshal(val, &row); err != nil {
				return err
			}
			out = append(out, adapters.MapStoreAuditToDomain(&row))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return out, nil
}
