package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"picchat/internal/models"
)

// EventChatMessage はチャットメッセージのイベント名
const EventChatMessage = "chat message"

// Hub は全WebSocketクライアントの接続を管理する。
// 接続状態のみを保持し、永続化は行わない。
type Hub struct {
	// 接続中のクライアント
	clients map[*Client]bool

	// ブロードキャスト用チャネル
	broadcast chan []byte

	// クライアント登録用チャネル
	register chan *Client

	// クライアント登録解除用チャネル
	unregister chan *Client

	// 接続数。clientsはRunループ内でのみ触るため、
	// 外部へ公開する件数は別途ロック付きで保持する
	mu    sync.RWMutex
	count int
}

// IncomingMessage はクライアントから受信するメッセージの形式
type IncomingMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// OutgoingMessage はクライアントへ送信するメッセージの形式
type OutgoingMessage struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewHub は新しいHubを作成する
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run はHubのメインループを開始する。
// clientsの変更はこのループ内でのみ行う。
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			log.Printf("Client registered: %s (total: %d)", client.remoteAddr, len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setCount(len(h.clients))
				log.Printf("Client unregistered: %s (total: %d)", client.remoteAddr, len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 送信バッファが詰まったクライアントは切り離す
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

// setCount は公開用の接続数を更新する
func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Broadcast は永続化済みメッセージを全クライアントに配信する。
// 個々のクライアントへの配信はベストエフォートで、
// 一部への配信失敗が他のクライアントへの配信を妨げることはない。
func (h *Hub) Broadcast(msg models.Message) {
	outMsg := OutgoingMessage{
		Type:      EventChatMessage,
		ID:        msg.ID,
		Username:  msg.Username,
		Text:      msg.Text,
		ImageURL:  msg.ImageURL,
		CreatedAt: msg.CreatedAt,
	}

	data, err := json.Marshal(outMsg)
	if err != nil {
		log.Printf("Failed to marshal broadcast message: %v", err)
		return
	}

	h.broadcast <- data
}

// ClientCount は接続中のクライアント数を返す。
// どのgoroutineからでも安全に呼べる。
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
