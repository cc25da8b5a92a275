package repository

import "time"

const (
	defaultRedisPrefix     = "blindbox"
	defaultMaxOpenConns    = 10
	defaultOccupancyPeriod = 15 * time.Second
)

type settings struct {
	sqlitePath      string
	postgresDSN     string
	redisAddr       string
	redisPassword   string
	redisDB         int
	redisPrefix     string
	maxOpenConns    int
	occupancyPeriod time.Duration
}

func defaultSettings() settings {
	return settings{
		sqlitePath:      "blindbox.db",
		redisAddr:       "localhost:6379",
		redisPrefix:     defaultRedisPrefix,
		maxOpenConns:    defaultMaxOpenConns,
		occupancyPeriod: defaultOccupancyPeriod,
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithSQLitePath sets the database file of the sqlite backend.
func WithSQLitePath(path string) Option {
	return func(s *settings) {
		if path != "" {
			s.sqlitePath = path
		}
	}
}

// WithPostgresDSN sets the connection string of the postgres backend.
func WithPostgresDSN(dsn string) Option {
	return func(s *settings) {
		if dsn != "" {
			s.postgresDSN = dsn
		}
	}
}

// WithRedis sets the address, password and database of the redis backend.
func WithRedis(addr, password string, db int) Option {
	return func(s *settings) {
		if addr != "" {
			s.redisAddr = addr
		}
		s.redisPassword = password
		if db >= 0 {
			s.redisDB = db
		}
	}
}

// WithKeyPrefix namespaces every redis key.
func WithKeyPrefix(prefix string) Option {
	return func(s *settings) {
		if prefix != "" {
			s.redisPrefix = prefix
		}
	}
}

// WithMaxOpenConns caps the connection pool of the SQL backends.
func WithMaxOpenConns(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithOccupancyInterval sets how often the memory store publishes its
// revealed-slot count.
func WithOccupancyInterval(interval time.Duration) Option {
	return func(s *settings) {
		if interval > 0 {
			s.occupancyPeriod = interval
		}
	}
}
