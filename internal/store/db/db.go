// Package db opens the session store driver selected by configuration.
package db

import (
	"fmt"

	"portal-chat/internal/store"
	"portal-chat/internal/store/db/mysql"
	"portal-chat/internal/store/db/postgres"
	"portal-chat/internal/store/db/sqlite"
)

func NewDriver(driver, dsn string) (store.Driver, error) {
	switch driver {
	case "sqlite":
		return sqlite.NewDB(dsn)
	case "postgres":
		return postgres.NewDB(dsn)
	case "mysql":
		return mysql.NewDB(dsn)
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
}
