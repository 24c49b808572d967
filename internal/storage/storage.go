package storage

import (
	"context"

	"picchat/internal/models"
)

// HistoryLimit は履歴取得の上限件数
const HistoryLimit = 100

// Store はメッセージストレージのインターフェース
type Store interface {
	// Append はメッセージを永続化する。
	// IDとCreatedAtが未設定の場合はここで採番し、永続化後のレコードを返す。
	Append(ctx context.Context, msg models.Message) (models.Message, error)

	// RecentHistory は直近のメッセージを最大limit件、作成日時の昇順で返す
	RecentHistory(ctx context.Context, limit int) ([]models.Message, error)
}
