package uploader

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryUploader は画像をメモリ上に保持するアップローダー。
// 外部サービスを使わない開発・テスト用。
type MemoryUploader struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemoryUploader は新しいMemoryUploaderを作成する
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{
		files: make(map[string][]byte),
	}
}

// Upload は画像データを保持し、疑似URLを返す
func (u *MemoryUploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) > MaxUploadSize {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	name := uuid.New().String()

	u.mu.Lock()
	defer u.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	u.files[name] = stored

	return fmt.Sprintf("memory://%s/%s", uploadFolder, name), nil
}

// FileCount は保持しているファイル数を返す
func (u *MemoryUploader) FileCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.files)
}
