package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"picchat/internal/models"
	"picchat/internal/storage"
	"picchat/internal/uploader"
)

// recordingBroadcaster は配信されたメッセージを記録するスタブ
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []models.Message
}

func (b *recordingBroadcaster) Broadcast(msg models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// failingStore は常にAppendが失敗するスタブ
type failingStore struct{}

func (s *failingStore) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	return models.Message{}, errors.New("connection lost")
}

func (s *failingStore) RecentHistory(ctx context.Context, limit int) ([]models.Message, error) {
	return nil, errors.New("connection lost")
}

// failingUploader は常にUploadが失敗するスタブ
type failingUploader struct{}

func (u *failingUploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	return "", errors.New("service rejected upload")
}

func TestPipeline_Submit_TextOnly(t *testing.T) {
	store := storage.NewMemoryStore()
	up := uploader.NewMemoryUploader()
	broadcaster := &recordingBroadcaster{}
	pipeline := New(store, up, broadcaster)

	msg, err := pipeline.Submit(context.Background(), Submission{Username: "alice", Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.ID == "" {
		t.Error("expected non-empty ID")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("expected non-zero CreatedAt")
	}
	if msg.ImageURL != "" {
		t.Errorf("expected empty image URL, got '%s'", msg.ImageURL)
	}

	// 画像なしの投稿ではアップローダーを呼ばない
	if up.FileCount() != 0 {
		t.Errorf("expected no uploads, got %d", up.FileCount())
	}

	// ちょうど1回配信される
	if broadcaster.count() != 1 {
		t.Fatalf("expected 1 broadcast, got %d", broadcaster.count())
	}
	if broadcaster.messages[0].ID != msg.ID {
		t.Errorf("broadcast message ID mismatch: expected '%s', got '%s'", msg.ID, broadcaster.messages[0].ID)
	}
}

func TestPipeline_Submit_WithImage(t *testing.T) {
	store := storage.NewMemoryStore()
	up := uploader.NewMemoryUploader()
	broadcaster := &recordingBroadcaster{}
	pipeline := New(store, up, broadcaster)

	msg, err := pipeline.Submit(context.Background(), Submission{
		Username:      "bob",
		Text:          "hello",
		Image:         []byte("fake-image-bytes"),
		ImageName:     "photo.png",
		ImageDeclared: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.ImageURL == "" {
		t.Error("expected non-empty image URL")
	}
	if up.FileCount() != 1 {
		t.Errorf("expected 1 upload, got %d", up.FileCount())
	}

	if broadcaster.count() != 1 {
		t.Fatalf("expected 1 broadcast, got %d", broadcaster.count())
	}
	if broadcaster.messages[0].ImageURL != msg.ImageURL {
		t.Errorf("broadcast image URL mismatch: expected '%s', got '%s'",
			msg.ImageURL, broadcaster.messages[0].ImageURL)
	}
}

func TestPipeline_Submit_EmptyDeclaredImage(t *testing.T) {
	store := storage.NewMemoryStore()
	up := uploader.NewMemoryUploader()
	broadcaster := &recordingBroadcaster{}
	pipeline := New(store, up, broadcaster)

	_, err := pipeline.Submit(context.Background(), Submission{
		Username:      "alice",
		Text:          "hi",
		ImageDeclared: true,
	})
	if !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}

	// 何も永続化されず、配信もされない
	messages, _ := store.RecentHistory(context.Background(), storage.HistoryLimit)
	if len(messages) != 0 {
		t.Errorf("expected no persisted messages, got %d", len(messages))
	}
	if broadcaster.count() != 0 {
		t.Errorf("expected no broadcasts, got %d", broadcaster.count())
	}
	if up.FileCount() != 0 {
		t.Errorf("expected no uploads, got %d", up.FileCount())
	}
}

func TestPipeline_Submit_EmptyTextWithoutImage(t *testing.T) {
	store := storage.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}
	pipeline := New(store, uploader.NewMemoryUploader(), broadcaster)

	// 本文も画像もない投稿は拒否しない
	msg, err := pipeline.Submit(context.Background(), Submission{Username: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID == "" {
		t.Error("expected non-empty ID")
	}
	if broadcaster.count() != 1 {
		t.Errorf("expected 1 broadcast, got %d", broadcaster.count())
	}
}

func TestPipeline_Submit_UploadFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}
	pipeline := New(store, &failingUploader{}, broadcaster)

	_, err := pipeline.Submit(context.Background(), Submission{
		Username:      "alice",
		Text:          "hi",
		Image:         []byte("bytes"),
		ImageDeclared: true,
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// アップロード失敗時は何も永続化されず、配信もされない
	messages, _ := store.RecentHistory(context.Background(), storage.HistoryLimit)
	if len(messages) != 0 {
		t.Errorf("expected no persisted messages, got %d", len(messages))
	}
	if broadcaster.count() != 0 {
		t.Errorf("expected no broadcasts, got %d", broadcaster.count())
	}
}

func TestPipeline_Submit_OversizedImage(t *testing.T) {
	store := storage.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}
	pipeline := New(store, uploader.NewMemoryUploader(), broadcaster)

	_, err := pipeline.Submit(context.Background(), Submission{
		Username:      "alice",
		Image:         make([]byte, uploader.MaxUploadSize+1),
		ImageDeclared: true,
	})
	if !errors.Is(err, uploader.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	messages, _ := store.RecentHistory(context.Background(), storage.HistoryLimit)
	if len(messages) != 0 {
		t.Errorf("expected no persisted messages, got %d", len(messages))
	}
	if broadcaster.count() != 0 {
		t.Errorf("expected no broadcasts, got %d", broadcaster.count())
	}
}

func TestPipeline_Submit_StoreFailure(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	pipeline := New(&failingStore{}, uploader.NewMemoryUploader(), broadcaster)

	_, err := pipeline.Submit(context.Background(), Submission{Username: "alice", Text: "hi"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// 永続化に失敗したメッセージは配信されない
	if broadcaster.count() != 0 {
		t.Errorf("expected no broadcasts, got %d", broadcaster.count())
	}
}

// historyCheckingBroadcaster は配信時点でメッセージが履歴から取得できることを確認する
type historyCheckingBroadcaster struct {
	store storage.Store
	t     *testing.T
}

func (b *historyCheckingBroadcaster) Broadcast(msg models.Message) {
	b.t.Helper()
	messages, err := b.store.RecentHistory(context.Background(), storage.HistoryLimit)
	if err != nil {
		b.t.Errorf("history query failed during broadcast: %v", err)
		return
	}
	for _, m := range messages {
		if m.ID == msg.ID {
			return
		}
	}
	b.t.Errorf("message '%s' broadcast before it was retrievable from history", msg.ID)
}

func TestPipeline_Submit_PersistBeforeBroadcast(t *testing.T) {
	store := storage.NewMemoryStore()
	broadcaster := &historyCheckingBroadcaster{store: store, t: t}
	pipeline := New(store, uploader.NewMemoryUploader(), broadcaster)

	if _, err := pipeline.Submit(context.Background(), Submission{Username: "alice", Text: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPipeline_Submit_Concurrent(t *testing.T) {
	store := storage.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}
	pipeline := New(store, uploader.NewMemoryUploader(), broadcaster)

	const submissions = 10

	var wg sync.WaitGroup
	errs := make(chan error, submissions)
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := pipeline.Submit(context.Background(), Submission{
				Username: "alice",
				Text:     fmt.Sprintf("message %d", n),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	// 各投稿がちょうど1件ずつ永続化され、IDが重複しないことを確認
	messages, err := store.RecentHistory(context.Background(), storage.HistoryLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != submissions {
		t.Fatalf("expected %d persisted messages, got %d", submissions, len(messages))
	}

	seen := make(map[string]bool)
	for _, msg := range messages {
		if seen[msg.ID] {
			t.Errorf("duplicate message ID '%s'", msg.ID)
		}
		seen[msg.ID] = true
	}

	// 配信もちょうど1回ずつ
	if broadcaster.count() != submissions {
		t.Errorf("expected %d broadcasts, got %d", submissions, broadcaster.count())
	}
}

func TestPipeline_SubmitText(t *testing.T) {
	store := storage.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}
	pipeline := New(store, uploader.NewMemoryUploader(), broadcaster)

	msg, err := pipeline.SubmitText(context.Background(), "alice", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Username != "alice" {
		t.Errorf("expected username 'alice', got '%s'", msg.Username)
	}
	if msg.Text != "hi" {
		t.Errorf("expected text 'hi', got '%s'", msg.Text)
	}
	if msg.ImageURL != "" {
		t.Errorf("expected empty image URL, got '%s'", msg.ImageURL)
	}
}

func TestPipeline_History(t *testing.T) {
	store := storage.NewMemoryStore()
	pipeline := New(store, uploader.NewMemoryUploader(), &recordingBroadcaster{})

	ctx := context.Background()
	now := time.Now()

	// 上限を超える件数を保存する
	for i := 0; i < storage.HistoryLimit+5; i++ {
		store.Append(ctx, models.Message{
			Username:  "alice",
			Text:      fmt.Sprintf("message %d", i),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
	}

	messages, err := pipeline.History(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 上限件数まで、作成日時の昇順で返る
	if len(messages) != storage.HistoryLimit {
		t.Fatalf("expected %d messages, got %d", storage.HistoryLimit, len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatal("expected messages in ascending order")
		}
	}

	// 古い側が切り捨てられている
	if messages[0].Text != "message 5" {
		t.Errorf("expected oldest retained message 'message 5', got '%s'", messages[0].Text)
	}
}
