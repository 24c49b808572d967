package uploader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultUploadEndpoint はImageKitのアップロードAPIエンドポイント
const DefaultUploadEndpoint = "https://upload.imagekit.io/api/v1/files/upload"

// uploadFolder はアップロード先の論理フォルダ
const uploadFolder = "/chat_images"

// requestTimeout はアップロードリクエストのタイムアウト
const requestTimeout = 30 * time.Second

// ImageKitUploader は画像をImageKitへアップロードする
type ImageKitUploader struct {
	privateKey string
	endpoint   string
	client     *http.Client
}

// NewImageKitUploader は新しいImageKitUploaderを作成する
func NewImageKitUploader(privateKey, endpoint string) *ImageKitUploader {
	if endpoint == "" {
		endpoint = DefaultUploadEndpoint
	}
	return &ImageKitUploader{
		privateKey: privateKey,
		endpoint:   endpoint,
		client:     &http.Client{Timeout: requestTimeout},
	}
}

// uploadResponse はImageKitアップロードAPIのレスポンス
type uploadResponse struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Upload は画像データをImageKitへアップロードし、公開URLを返す
func (u *ImageKitUploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) > MaxUploadSize {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	// 衝突しないファイル名をサーバー側で採番する
	// 拡張子は元のファイル名ではなく実データから判定する
	name := uuid.New().String() + mimetype.Detect(data).Extension()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("file", base64.StdEncoding.EncodeToString(data)); err != nil {
		return "", err
	}
	if err := writer.WriteField("fileName", name); err != nil {
		return "", err
	}
	if err := writer.WriteField("folder", uploadFolder); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	// 認証はプライベートキーをBasic認証のユーザー名として送る
	req.SetBasicAuth(u.privateKey, "")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagekit upload: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("imagekit upload: %w", err)
	}

	var result uploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("imagekit upload: invalid response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("imagekit upload: status %d: %s", resp.StatusCode, result.Message)
	}

	if result.URL == "" {
		return "", fmt.Errorf("imagekit upload: response contains no url")
	}

	return result.URL, nil
}
