package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"picchat/internal/models"
)

// PostgresStore はメッセージをPostgreSQLに保存するストア
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore は新しいPostgresStoreを作成する
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	// 接続プール設定
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 接続確認
	if err := db.Ping(); err != nil {
		return nil, err
	}

	store := &PostgresStore{db: db}

	// マイグレーション実行
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

// migrate はデータベーススキーマを作成する
func (s *PostgresStore) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(36) PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			image_url TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// Append はメッセージを保存する
func (s *PostgresStore) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var imageURL sql.NullString
	if msg.ImageURL != "" {
		imageURL = sql.NullString{String: msg.ImageURL, Valid: true}
	}

	query := `
		INSERT INTO messages (id, username, text, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.Username, msg.Text, imageURL, msg.CreatedAt); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

// RecentHistory は直近のメッセージを最大limit件、作成日時の昇順で返す
func (s *PostgresStore) RecentHistory(ctx context.Context, limit int) ([]models.Message, error) {
	// 新しい側のlimit件を取り出してから昇順に並べ直す
	query := `
		SELECT id, username, text, image_url, created_at
		FROM (
			SELECT id, username, text, image_url, created_at
			FROM messages
			ORDER BY created_at DESC
			LIMIT $1
		) recent
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var imageURL sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Username, &msg.Text, &imageURL, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if imageURL.Valid {
			msg.ImageURL = imageURL.String
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// nilではなく空のスライスを返す
	if messages == nil {
		messages = []models.Message{}
	}

	return messages, nil
}

// Close はデータベース接続を閉じる
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
