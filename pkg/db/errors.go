package db

import (
	"errors"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var ErrAuthFailed = errors.New("authentication failed")

// mysql server error numbers for rejected credentials.
const (
	erAccessDenied           = 1045
	erDBAccessDenied         = 1044
	erAccessDeniedNoPassword = 1698
)

// IsAuthError reports whether err means the server rejected our
// credentials, as opposed to any other connection or query failure. This is
// the trigger for an on-demand rotation.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthFailed) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erAccessDenied, erDBAccessDenied, erAccessDeniedNoPassword:
			return true
		}
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// SQLSTATE class 28 is "Invalid Authorization Specification",
		// covering 28000 and 28P01.
		return pqErr.Code.Class() == "28"
	}

	return false
}
