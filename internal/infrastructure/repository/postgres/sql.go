package postgres

import (
	"database/sql"
	"errors"

	"github.com/bytedance/sonic"
)

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func marshalJSON(v any) ([]byte, error) {
	return sonic.Marshal(v)
}
