package persist

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// SQLStore drives the Store contract through database/sql against two
// tables, arn_path (id, path) and arn_value (id, blob, last_used,
// mandatory); callers
// supply their own *sql.DB wired to whatever driver they vendor, since
// the concrete store is out of scope here (spec.md §6).
type SQLStore struct {
	DB *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{DB: db} }

func (s *SQLStore) GetDBID(ctx context.Context, path string, create bool) (int64, bool, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `SELECT id FROM arn_path WHERE path = ?`, path).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		if !create {
			return 0, false, nil
		}
		res, err := s.DB.ExecContext(ctx, `INSERT INTO arn_path (path) VALUES (?)`, path)
		if err != nil {
			return 0, false, errors.Wrapf(err, "persist: inserting path %q", path)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, errors.Wrap(err, "persist: reading new path id")
		}
		return id, true, nil
	case err != nil:
		return 0, false, errors.Wrapf(err, "persist: looking up path %q", path)
	default:
		return id, true, nil
	}
}

func (s *SQLStore) GetDBValue(ctx context.Context, id int64) ([]byte, bool, error) {
	var blob []byte
	err := s.DB.QueryRowContext(ctx, `SELECT blob FROM arn_value WHERE id = ?`, id).Scan(&blob)
	switch {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Wrapf(err, "persist: loading value for id %d", id)
	default:
		return blob, true, nil
	}
}

func (s *SQLStore) InsertDBValue(ctx context.Context, id int64, blob []byte) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO arn_value (id, blob, last_used, mandatory) VALUES (?, ?, 0, 0)`, id, blob)
	if err != nil {
		return errors.Wrapf(err, "persist: inserting value for id %d", id)
	}
	return nil
}

func (s *SQLStore) UpdateDBValue(ctx context.Context, id int64, blob []byte) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE arn_value SET blob = ? WHERE id = ?`, blob, id)
	if err != nil {
		return errors.Wrapf(err, "persist: updating value for id %d", id)
	}
	return nil
}

func (s *SQLStore) UpdateDBUsed(ctx context.Context, id int64, epochSeconds int64) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE arn_value SET last_used = ? WHERE id = ?`, epochSeconds, id)
	if err != nil {
		return errors.Wrapf(err, "persist: touching last_used for id %d", id)
	}
	return nil
}

func (s *SQLStore) UpdateDBMandatory(ctx context.Context, id int64, mandatory bool) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE arn_value SET mandatory = ? WHERE id = ?`, mandatory, id)
	if err != nil {
		return errors.Wrapf(err, "persist: setting mandatory for id %d", id)
	}
	return nil
}
