package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Sentinel errors shared by the MySQL repositories and the in-memory stores.
var (
	ErrNotFound           = errors.New("record not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrPhoneExists        = errors.New("phone number already exists")
	ErrRoleNameExists     = errors.New("role name already exists")
	ErrReferenced         = errors.New("record is still referenced")
	ErrBootstrapTaken     = errors.New("bootstrap account already exists")
	ErrInvitationConsumed = errors.New("invitation already used")
	ErrPendingInvitation  = errors.New("pending invitation already exists")
)

const (
	mysqlDuplicateEntry  = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

func mysqlCode(err error) (uint16, string) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, me.Message
	}
	return 0, ""
}

// isDuplicate reports a unique key violation. When key is non-empty the
// violated index name must contain it.
func isDuplicate(err error, key string) bool {
	code, msg := mysqlCode(err)
	if code != mysqlDuplicateEntry {
		return false
	}
	return key == "" || strings.Contains(msg, key)
}

func isReferenced(err error) bool {
	code, _ := mysqlCode(err)
	return code == mysqlRowIsReferenced
}

func isMissingReference(err error) bool {
	code, _ := mysqlCode(err)
	return code == mysqlNoReferencedRow
}
