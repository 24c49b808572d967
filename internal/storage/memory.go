package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"picchat/internal/models"
)

// MemoryStore はメッセージをメモリ上に保存するストア
type MemoryStore struct {
	mu       sync.RWMutex
	messages []models.Message
}

// NewMemoryStore は新しいMemoryStoreを作成する
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make([]models.Message, 0),
	}
}

// Append はメッセージを保存する
func (s *MemoryStore) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return msg, nil
}

// RecentHistory は直近のメッセージを最大limit件、作成日時の昇順で返す
func (s *MemoryStore) RecentHistory(ctx context.Context, limit int) ([]models.Message, error) {
	s.mu.RLock()
	result := make([]models.Message, len(s.messages))
	copy(result, s.messages)
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	// 件数超過時は新しい側のlimit件を残す（昇順は維持）
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}

	return result, nil
}
