package models

import "time"

// Message はチャットメッセージを表す構造体。
// 永続化された後は不変で、更新・削除は行われない。
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
