package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	// Path is the SQLite file or the badger directory.
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	Logger        *slog.Logger
}

// Open returns the backend named by o.Driver.
func Open(ctx context.Context, o Options) (Store, error) {
	var (
		s   Store
		err error
	)

	switch o.Driver {
	case DriverSQLite, "":
		s, err = OpenSQLite(o.Path)
	case DriverBadger:
		s, err = OpenBadger(BadgerOptions{Path: o.Path, Logger: o.Logger})
	case DriverRedis:
		// Redis namespaces natively so its event list shares the prefix.
		return OpenRedis(ctx, RedisOptions{
			Addr:     o.RedisAddr,
			Password: o.RedisPassword,
			DB:       o.RedisDB,
			Prefix:   o.KeyPrefix,
			Logger:   o.Logger,
		})
	case DriverMemory:
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", o.Driver)
	}
	if err != nil {
		return nil, err
	}

	if o.KeyPrefix != "" {
		return &ownedPrefix{prefixed: prefixed{inner: s, prefix: o.KeyPrefix}}, nil
	}
	return s, nil
}

// ownedPrefix is a prefixed view that owns, and closes, its inner store.
type ownedPrefix struct {
	prefixed
}

func (o *ownedPrefix) Close() error {
	return o.inner.Close()
}
