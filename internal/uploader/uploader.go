package uploader

import (
	"context"
	"errors"
)

// MaxUploadSize はアップロード可能な最大サイズ（5MiB）
const MaxUploadSize = 5 << 20

// ErrTooLarge はペイロードがサイズ上限を超えた場合のエラー
var ErrTooLarge = errors.New("image exceeds upload size limit")

// Uploader は画像を外部ストレージへアップロードするインターフェース
type Uploader interface {
	// Upload は画像データをアップロードし、参照用URLを返す。
	// ファイル名は衝突しないようサーバー側で採番される。
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}
