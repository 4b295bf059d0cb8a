package sqlite

import (
	"errors"

	sqlite3 "modernc.org/sqlite"
)

// SQLite extended result codes used for constraint violation detection.
const (
	codeConstraintUnique     = 2067 // SQLITE_CONSTRAINT_UNIQUE
	codeConstraintPrimaryKey = 1555 // SQLITE_CONSTRAINT_PRIMARYKEY
	codeConstraintForeignKey = 787  // SQLITE_CONSTRAINT_FOREIGNKEY
)

// IsUniqueViolation reports whether err represents a SQLite unique constraint
// violation, on either a UNIQUE column or the primary key.
func IsUniqueViolation(err error) bool {
	var se *sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == codeConstraintUnique || se.Code() == codeConstraintPrimaryKey
}

// IsForeignKeyViolation reports whether err represents a SQLite foreign key
// constraint violation.
func IsForeignKeyViolation(err error) bool {
	var se *sqlite3.Error
	return errors.As(err, &se) && se.Code() == codeConstraintForeignKey
}
