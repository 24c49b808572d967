package main

import (
	"log"
	"net/http"

	"picchat/internal/config"
	"picchat/internal/handlers"
	"picchat/internal/relay"
	"picchat/internal/storage"
	"picchat/internal/uploader"
	"picchat/internal/websocket"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// ストレージの初期化
	store, cleanup := initStore(cfg)
	if cleanup != nil {
		defer cleanup()
	}

	// アップローダーの初期化
	up := initUploader(cfg)

	// WebSocket Hubの初期化と起動
	hub := websocket.NewHub()
	go hub.Run()

	// 取り込みパイプラインの初期化。
	// HTTPとWebSocketの両方がこの1本の経路を通る。
	pipeline := relay.New(store, up, hub)

	messageHandler := handlers.NewMessageHandler(pipeline)

	// ルーティング設定
	http.HandleFunc("/upload", messageHandler.HandleUpload)
	http.HandleFunc("/messages", messageHandler.HandleMessages)

	// WebSocketエンドポイント
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(hub, pipeline, w, r)
	})

	// ヘルスチェック用エンドポイント
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// フロントエンドの静的ファイル配信
	http.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))

	// サーバー起動
	addr := ":" + cfg.Port
	log.Printf("Server starting on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// initStore は設定に基づいてストレージを初期化する
func initStore(cfg config.Config) (storage.Store, func()) {
	switch cfg.StorageType {
	case "postgres":
		dsn, err := cfg.DatabaseDSN()
		if err != nil {
			log.Fatalf("Invalid database config: %v", err)
		}

		store, err := storage.NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}

		log.Println("Using PostgreSQL store")
		return store, func() {
			if err := store.Close(); err != nil {
				log.Printf("Error closing database connection: %v", err)
			}
		}

	default:
		log.Println("Using in-memory store")
		return storage.NewMemoryStore(), nil
	}
}

// initUploader は設定に基づいてアップローダーを初期化する
func initUploader(cfg config.Config) uploader.Uploader {
	switch cfg.UploaderType {
	case "imagekit":
		if !cfg.ImageKitReady() {
			log.Fatal("IMAGEKIT_PRIVATE_KEY is required when UPLOADER_TYPE=imagekit")
		}
		log.Println("Using ImageKit uploader")
		return uploader.NewImageKitUploader(cfg.ImageKitPrivateKey, cfg.ImageKitUploadEndpoint)

	default:
		log.Println("Using in-memory uploader")
		return uploader.NewMemoryUploader()
	}
}
