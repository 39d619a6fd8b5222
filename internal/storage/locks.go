package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// AcquireLock claims key for ttl. It succeeds when the key is absent or its
// previous claim has expired; otherwise the holder keeps it. The lock is
// advisory: there is no explicit release, expiry is the release.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("storage: empty lock key")
	}
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locks(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until = excluded.until WHERE locks.until < ?`,
		key, now+ttl.Milliseconds(), now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LockExpiry reports when key's current claim ends, if one is live.
func (s *Store) LockExpiry(ctx context.Context, key string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM locks WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	until := time.UnixMilli(ms)
	if !until.After(time.Now()) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// PruneLocks drops expired lock rows.
func (s *Store) PruneLocks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE until < ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
