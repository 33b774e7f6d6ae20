package repositories

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	apperrors "switchboard/internal/pkg/errors"
)

type scanner interface {
	Scan(dest ...any) error
}

// conflict maps a SQLite unique-constraint violation to a ConflictError.
// Other errors are returned unchanged.
func conflict(err error, message string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return apperrors.Wrap(apperrors.KindConflict, message, err)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
