package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mural-app/birthday-wall/internal/model/wall"
)

// ErrNotFound is returned when a requested record or blob is absent.
var ErrNotFound = errors.New("not found")

// SQLite is the authoritative store for messages and media records.
type SQLite struct {
	db *sql.DB
}

//go:embed init.sql
var initQuery string

// NewSQLite opens (creating directories as needed) and initializes the
// database at filePath.
func NewSQLite(ctx context.Context, filePath string) (*SQLite, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", filePath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite3 database: %w", err)
	}

	client := &SQLite{db: db}
	if _, err := db.ExecContext(ctx, initQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing sqlite3 database: %w", err)
	}

	return client, nil
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

// Ping reports whether the database is reachable, for health checks.
func (c *SQLite) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *SQLite) InsertMessage(ctx context.Context, msg wall.Message) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO messages (id, text, author, color, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.Text, msg.Author, msg.Color, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListMessages returns one page of messages, newest first.
func (c *SQLite) ListMessages(ctx context.Context, limit, offset int) ([]wall.Message, error) {
	rows, err := c.db.QueryContext(
		ctx,
		`SELECT id, text, author, color, timestamp FROM messages
			ORDER BY timestamp DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]wall.Message, 0, limit)
	for rows.Next() {
		var msg wall.Message
		if err := rows.Scan(&msg.ID, &msg.Text, &msg.Author, &msg.Color, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (c *SQLite) CountMessages(ctx context.Context) (int, error) {
	var total int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return total, nil
}

func (c *SQLite) DeleteMessage(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

func (c *SQLite) InsertMedia(ctx context.Context, media wall.MediaFile) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO media_files (id, filename, original_name, type, size, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
		media.ID, media.Filename, media.OriginalName, string(media.Type), media.Size, media.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting media: %w", err)
	}
	return nil
}

// ListMedia returns one page of media records, newest first.
func (c *SQLite) ListMedia(ctx context.Context, limit, offset int) ([]wall.MediaFile, error) {
	rows, err := c.db.QueryContext(
		ctx,
		`SELECT id, filename, original_name, type, size, timestamp FROM media_files
			ORDER BY timestamp DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying media: %w", err)
	}
	defer rows.Close()

	files := make([]wall.MediaFile, 0, limit)
	for rows.Next() {
		var media wall.MediaFile
		var mediaType string
		if err := rows.Scan(&media.ID, &media.Filename, &media.OriginalName, &mediaType, &media.Size, &media.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning media: %w", err)
		}
		media.Type = wall.MediaType(mediaType)
		files = append(files, media)
	}
	return files, rows.Err()
}

func (c *SQLite) CountMedia(ctx context.Context) (int, error) {
	var total int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_files`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("counting media: %w", err)
	}
	return total, nil
}

func (c *SQLite) GetMediaByID(ctx context.Context, id string) (wall.MediaFile, error) {
	var media wall.MediaFile
	var mediaType string
	err := c.db.QueryRowContext(
		ctx,
		`SELECT id, filename, original_name, type, size, timestamp FROM media_files WHERE id = ?`,
		id,
	).Scan(&media.ID, &media.Filename, &media.OriginalName, &mediaType, &media.Size, &media.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wall.MediaFile{}, ErrNotFound
		}
		return wall.MediaFile{}, fmt.Errorf("querying media by id: %w", err)
	}
	media.Type = wall.MediaType(mediaType)
	return media, nil
}

func (c *SQLite) DeleteMedia(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM media_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting media: %w", err)
	}
	return nil
}
