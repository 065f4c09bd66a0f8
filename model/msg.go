package model

const (
	E_SUCCESS = "0000"
	E_UNKNOWN = "0001"

	E_INVALID_PARAMS = "0100"
	E_DATA_NOT_EXIST = "0101"
	E_DATA_DUPLICATED = "0102"
	E_DATA_EMPTY      = "0103"

	E_CACHE_UNAVAILABLE = "0200"
	E_BREAKER_OPEN      = "0201"

	E_DATA_INSERT_FAILED = "0300"
	E_DATA_UPDATE_FAILED = "0301"
	E_DATA_SELECT_FAILED = "0302"

	E_AUDIT_FAILED = "0400"

	E_MIGRATION_VALIDATE_FAILED = "0500"
	E_MIGRATION_LOCK_HELD       = "0501"
	E_MIGRATION_APPLY_FAILED    = "0502"
	E_MIGRATION_ROLLBACK_FAILED = "0503"
)

var Messages = map[string]string{
	E_SUCCESS: "E_SUCCESS",
	E_UNKNOWN: "E_UNKNOWN",

	E_INVALID_PARAMS:  "E_INVALID_PARAMS",
	E_DATA_NOT_EXIST:  "E_DATA_NOT_EXIST",
	E_DATA_DUPLICATED: "E_DATA_DUPLICATED",
	E_DATA_EMPTY:      "E_DATA_EMPTY",

	E_CACHE_UNAVAILABLE: "E_CACHE_UNAVAILABLE",
	E_BREAKER_OPEN:      "E_BREAKER_OPEN",

	E_DATA_INSERT_FAILED: "E_DATA_INSERT_FAILED",
	E_DATA_UPDATE_FAILED: "E_DATA_UPDATE_FAILED",
	E_DATA_SELECT_FAILED: "E_DATA_SELECT_FAILED",

	E_AUDIT_FAILED: "E_AUDIT_FAILED",

	E_MIGRATION_VALIDATE_FAILED: "E_MIGRATION_VALIDATE_FAILED",
	E_MIGRATION_LOCK_HELD:       "E_MIGRATION_LOCK_HELD",
	E_MIGRATION_APPLY_FAILED:    "E_MIGRATION_APPLY_FAILED",
	E_MIGRATION_ROLLBACK_FAILED: "E_MIGRATION_ROLLBACK_FAILED",
}

func GetMsg(code string) string {
	if msg, ok := Messages[code]; ok {
		return msg
	}
	return Messages[E_UNKNOWN]
}
