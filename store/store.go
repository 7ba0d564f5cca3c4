// Package store persists fetched tile channels in a SQLite database, so a
// viewer session can resume without refetching.
//
// Note: User must properly initialize the sqlite3 library generic driver
// (e.g. import _ "github.com/mattn/go-sqlite3") before using this package.
package store

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/eak1mov/go-pyramid/tile"
)

type Store struct {
	db     *sql.DB
	put    *sql.Stmt
	get    *sql.Stmt
	logger *slog.Logger
}

type storeConfig struct {
	Metadata map[string]string
	Logger   *slog.Logger
}

type Option func(*storeConfig)

// WithMetadata stores name/value pairs describing the layer, e.g. the source
// URL, replacing previous values with the same name.
func WithMetadata(metadata map[string]string) Option {
	return func(c *storeConfig) { c.Metadata = metadata }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *storeConfig) { c.Logger = logger }
}

// Open opens or creates the store at filePath.
//
// The returned Store must be closed after use to release database resources.
func Open(filePath string, opts ...Option) (*Store, error) {
	config := storeConfig{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}

	var err error
	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (name TEXT PRIMARY KEY, value TEXT);
		CREATE TABLE IF NOT EXISTS tiles (
			level INTEGER,
			x INTEGER,
			y INTEGER,
			channel INTEGER,
			data BLOB
		);
		CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (level, x, y, channel);
	`)
	if err != nil {
		return nil, err
	}

	for k, v := range config.Metadata {
		_, err = db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", k, v)
		if err != nil {
			return nil, err
		}
	}

	put, err := db.Prepare("INSERT OR REPLACE INTO tiles (level, x, y, channel, data) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, err
	}
	get, err := db.Prepare("SELECT data FROM tiles WHERE level = ? AND x = ? AND y = ? AND channel = ?")
	if err != nil {
		put.Close()
		return nil, err
	}

	config.Logger.Debug("pyramid: store opened", "path", filePath)
	return &Store{db: db, put: put, get: get, logger: config.Logger}, nil
}

func (s *Store) Close() error {
	return errors.Join(s.put.Close(), s.get.Close(), s.db.Close())
}

func (s *Store) Metadata() (map[string]string, error) {
	metadata := make(map[string]string)

	rows, err := s.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return metadata, nil
}

// Put stores one channel of a tile, replacing previous data.
func (s *Store) Put(id tile.ID, channel int, data []byte) error {
	_, err := s.put.Exec(id.Level, id.X, id.Y, channel, data)
	return err
}

// Get returns one channel of a tile, or an empty slice if it is not stored.
func (s *Store) Get(id tile.ID, channel int) ([]byte, error) {
	var data []byte
	if err := s.get.QueryRow(id.Level, id.X, id.Y, channel).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return make([]byte, 0), nil
		}
		return nil, err
	}
	return data, nil
}

// Visit calls visitor for every stored tile channel, ordered by level, row,
// column and channel.
func (s *Store) Visit(visitor func(tile.ID, int, []byte) error) error {
	rows, err := s.db.Query("SELECT level, x, y, channel, data FROM tiles ORDER BY level, y, x, channel")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id tile.ID
		var channel int
		var data []byte

		if err := rows.Scan(&id.Level, &id.X, &id.Y, &channel, &data); err != nil {
			return err
		}

		if err := visitor(id, channel, data); err != nil {
			return err
		}
	}

	return rows.Err()
}
