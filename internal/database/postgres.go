package database

import (
	"database/sql"
)

type PgBroadchatRepository struct {
	conn *sql.DB
}

func NewPgBroadchatRepository(dsn string) (*PgBroadchatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgBroadchatRepository{conn: db}, nil
}

func (db *PgBroadchatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgBroadchatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
