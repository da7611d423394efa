package database

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		conn, err = sql.Open("sqlite3", config.SQLitePath)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dbType: config.Type}

	// Only create tables for SQLite; postgres goes through migrations.
	if config.Type == "sqlite" {
		if err := db.createTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		upload_time DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS frames (
		video_id TEXT NOT NULL,
		ts REAL NOT NULL,
		image_path TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL,
		PRIMARY KEY (video_id, seq)
	);

	CREATE TABLE IF NOT EXISTS captions (
		video_id TEXT NOT NULL,
		ts REAL NOT NULL,
		text TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (video_id, ts)
	);

	CREATE TABLE IF NOT EXISTS transcript_segments (
		video_id TEXT NOT NULL,
		start_s REAL NOT NULL,
		end_s REAL NOT NULL,
		text TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_video ON transcript_segments (video_id, start_s);

	CREATE TABLE IF NOT EXISTS detections (
		video_id TEXT NOT NULL,
		ts REAL NOT NULL,
		objects TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (video_id, ts)
	);

	CREATE TABLE IF NOT EXISTS memory_records (
		message_id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		ts DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memory_video_ts ON memory_records (video_id, ts);
	`

	_, err := db.conn.Exec(query)
	return err
}

func (db *DB) RunMigrations(migrationsPath string) error {
	migrator := NewMigrator(db.conn, db.dbType)
	return migrator.Run(migrationsPath)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}
