package mysql

import (
	"errors"

	"github.com/VividCortex/mysqlerr"
	"github.com/dashcraft/tagmigrate/server/contexts/ctxerr"
	"github.com/go-sql-driver/mysql"
)

func mysqlErrorNumber(err error) (uint16, bool) {
	var driverErr *mysql.MySQLError
	if errors.As(ctxerr.Cause(err), &driverErr) {
		return driverErr.Number, true
	}
	return 0, false
}

// isPermanentConnectError reports whether a failed ping cannot succeed on a
// retry: bad credentials, unknown database or a rejected host.
func isPermanentConnectError(err error) bool {
	n, ok := mysqlErrorNumber(err)
	if !ok {
		return false
	}
	switch n {
	case mysqlerr.ER_ACCESS_DENIED_ERROR,
		mysqlerr.ER_DBACCESS_DENIED_ERROR,
		mysqlerr.ER_BAD_DB_ERROR,
		mysqlerr.ER_HOST_NOT_PRIVILEGED:
		return true
	}
	return false
}
