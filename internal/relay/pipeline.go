package relay

import (
	"context"
	"errors"
	"fmt"

	"picchat/internal/models"
	"picchat/internal/storage"
	"picchat/internal/uploader"
)

// ErrEmptyImage は画像フィールドが宣言されたのに中身が空の場合のエラー
var ErrEmptyImage = errors.New("image field is empty")

// Broadcaster は永続化済みメッセージを接続中の全クライアントへ配信する
type Broadcaster interface {
	Broadcast(msg models.Message)
}

// Submission はクライアントからの投稿内容
type Submission struct {
	Username string
	Text     string

	// 添付画像。ImageDeclaredがtrueでImageが空の場合は検証エラーになる
	Image         []byte
	ImageName     string
	ImageDeclared bool
}

// Pipeline はメッセージ取り込みの唯一の経路。
// 全ての投稿は 検証 → アップロード → 永続化 → 配信 の順でここを通る。
type Pipeline struct {
	store       storage.Store
	uploader    uploader.Uploader
	broadcaster Broadcaster
}

// New は新しいPipelineを作成する
func New(store storage.Store, up uploader.Uploader, b Broadcaster) *Pipeline {
	return &Pipeline{
		store:       store,
		uploader:    up,
		broadcaster: b,
	}
}

// Submit は投稿を検証・永続化し、全クライアントへ配信する。
// 途中で失敗した場合は何も永続化されず、配信も行われない。
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (models.Message, error) {
	// 画像フィールドが宣言されている場合は中身が必須
	if sub.ImageDeclared && len(sub.Image) == 0 {
		return models.Message{}, ErrEmptyImage
	}

	var imageURL string
	if len(sub.Image) > 0 {
		url, err := p.uploader.Upload(ctx, sub.Image, sub.ImageName)
		if err != nil {
			return models.Message{}, fmt.Errorf("upload image: %w", err)
		}
		imageURL = url
	}

	msg := models.Message{
		Username: sub.Username,
		Text:     sub.Text,
		ImageURL: imageURL,
	}

	persisted, err := p.store.Append(ctx, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("persist message: %w", err)
	}

	// 配信は永続化の後でのみ行う
	p.broadcaster.Broadcast(persisted)

	return persisted, nil
}

// SubmitText はテキストのみの投稿を取り込む（ソケット経路用）
func (p *Pipeline) SubmitText(ctx context.Context, username, text string) (models.Message, error) {
	return p.Submit(ctx, Submission{Username: username, Text: text})
}

// History は直近のメッセージを作成日時の昇順で返す
func (p *Pipeline) History(ctx context.Context) ([]models.Message, error) {
	return p.store.RecentHistory(ctx, storage.HistoryLimit)
}
