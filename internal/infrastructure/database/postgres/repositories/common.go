package repositories

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// queryExecutor abstracts sqlx.DB and sqlx.Tx.
type queryExecutor interface {
	sqlx.ExtContext
}

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

func uniqueViolation(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return pqErr, true
	}
	return nil, false
}

func isNoRows(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// placeholders renders "$from, $from+1, ..." for n positional parameters.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}

func toDetail(v interface{}) string {
	return fmt.Sprint(v)
}
