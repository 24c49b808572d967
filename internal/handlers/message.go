package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"picchat/internal/models"
	"picchat/internal/relay"
	"picchat/internal/uploader"
)

// Relay はメッセージの取り込みと履歴取得を行うパイプライン
type Relay interface {
	Submit(ctx context.Context, sub relay.Submission) (models.Message, error)
	History(ctx context.Context) ([]models.Message, error)
}

// MessageHandler はメッセージ関連のHTTPリクエストを処理する
type MessageHandler struct {
	relay Relay
}

// NewMessageHandler は新しいMessageHandlerを作成する
func NewMessageHandler(r Relay) *MessageHandler {
	return &MessageHandler{relay: r}
}

// uploadResponse は /upload 成功時のレスポンスボディ
type uploadResponse struct {
	Message models.Message `json:"message"`
}

// errorResponse はエラー時のレスポンスボディ
type errorResponse struct {
	Error string `json:"error"`
}

// HandleUpload は /upload エンドポイントのハンドラー
func (h *MessageHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(uploader.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	sub := relay.Submission{
		Username: r.FormValue("username"),
		Text:     r.FormValue("text"),
	}

	// 画像フィールドは省略可能だが、宣言されている場合は中身が必須
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		// サイズ上限の判定はアップローダー側で行うため、上限+1まで読む
		data, err := io.ReadAll(io.LimitReader(file, uploader.MaxUploadSize+1))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read image")
			return
		}
		sub.Image = data
		sub.ImageName = header.Filename
		sub.ImageDeclared = true
	case errors.Is(err, http.ErrMissingFile):
		// 画像なしの投稿
	default:
		writeError(w, http.StatusBadRequest, "invalid image field")
		return
	}

	msg, err := h.relay.Submit(r.Context(), sub)
	if err != nil {
		if errors.Is(err, relay.ErrEmptyImage) {
			writeError(w, http.StatusBadRequest, "image field is empty")
			return
		}
		log.Printf("Upload failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to post message")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Message: msg})
}

// HandleMessages は /messages エンドポイントのハンドラー
func (h *MessageHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	messages, err := h.relay.History(r.Context())
	if err != nil {
		log.Printf("Failed to load history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// writeJSON はJSONレスポンスを書き込む
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError はエラーレスポンスを書き込む
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
