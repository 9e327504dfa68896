package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"kenbikyo/internal/amcam"
	"kenbikyo/internal/camera"
	"kenbikyo/internal/config"
	"kenbikyo/internal/snapshot"
)

// Server はHTTPサーバーとカメラのライフサイクルを管理する構造体
type Server struct {
	config     *config.Config
	sdk        amcam.SDK
	engine     *gin.Engine
	httpServer *http.Server

	// recorder は観察記録用の静止画保存
	recorder *snapshot.Recorder
	builder  *snapshot.Builder

	// camera は並行ハンドラから共有されるコントローラ参照
	// 起動時に1度だけ設定し、シャットダウンでクリアする
	camera atomic.Pointer[camera.Controller]
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, sdk amcam.SDK) *Server {
	engine := gin.Default()

	s := &Server{
		config: cfg,
		sdk:    sdk,
		engine: engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	snapCfg := snapshot.DefaultConfig()
	snapCfg.Enabled = cfg.Snapshot.Enabled
	if cfg.Snapshot.Interval > 0 {
		snapCfg.Interval = cfg.Snapshot.Interval
	}
	if cfg.Snapshot.OutputDir != "" {
		snapCfg.OutputDir = cfg.Snapshot.OutputDir
	}
	if cfg.Snapshot.RetentionDays > 0 {
		snapCfg.RetentionDays = cfg.Snapshot.RetentionDays
	}
	s.recorder = snapshot.NewRecorder(s.frameSource, snapCfg)
	s.builder = snapshot.NewBuilder()

	s.setupRoutes()
	return s
}

// frameSource は静止画保存へ現在のコントローラを供給する
func (s *Server) frameSource() snapshot.FrameSource {
	if ctrl := s.controller(); ctrl != nil {
		return ctrl
	}
	return nil
}

// controller は現在のカメラコントローラを返す（未接続ならnil）
func (s *Server) controller() *camera.Controller {
	return s.camera.Load()
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/get_ping", s.handleGetPing)

	// カメラAPIエンドポイント
	s.engine.GET("/get_status", s.handleGetStatus)
	s.engine.POST("/set_gain", s.handleSetGain)
	s.engine.POST("/set_exposure", s.handleSetExposure)
	s.engine.POST("/auto_exposure", s.handleAutoExposure)
	s.engine.POST("/set_resolution", s.handleSetResolution)
	s.engine.GET("/get_cameras", s.handleGetCameras)

	// フレーム配信エンドポイント
	s.engine.GET("/get_frame", s.handleGetFrame)
	s.engine.GET("/get_stream", s.handleGetStream)
	s.engine.GET("/get_ws", s.handleGetWebSocket)

	// 観察記録エンドポイント
	s.engine.GET("/get_snapshots", s.handleGetSnapshots)
	s.engine.POST("/save_snapshot", s.handleSaveSnapshot)
	s.engine.POST("/build_timelapse", s.handleBuildTimelapse)

	// ルートハンドラ（簡単な確認用）
	s.engine.GET("/", s.handleRoot)
}

// connectCamera は設定されたシリアルのカメラをオープンする
// シリアル未設定・デバイス不在の場合はカメラなしで起動する
func (s *Server) connectCamera() {
	if !s.config.Device.IsConfigured() {
		log.Println("シリアル番号が未設定のため、カメラなしで起動します")
		return
	}

	dev, err := camera.FindAndOpenBySerial(s.sdk, s.config.Device.SerialNumber)
	if err != nil {
		log.Printf("カメラのオープンに失敗しました（カメラなしで起動します）: %v", err)
		return
	}

	ctrl, err := camera.NewController(dev)
	if err != nil {
		log.Printf("コントローラの作成に失敗しました: %v", err)
		_ = dev.Close()
		return
	}

	s.camera.Store(ctrl)
	log.Printf("カメラに接続しました: serial=%s",
		camera.CanonicalSerial(s.config.Device.SerialNumber))
}

// Start はサーバーを起動する
// コンテキストのキャンセルまたはシグナルを受けるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	// 起動時に1度だけカメラへ接続する
	s.connectCamera()

	// 定期静止画保存を開始する
	if s.recorder.Config().Enabled {
		if err := s.recorder.Start(ctx); err != nil {
			log.Printf("静止画保存の開始に失敗しました: %v", err)
		}
	}

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		s.closeCamera()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンし、カメラを解放する
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)

	// 定期静止画保存を停止する
	if stopErr := s.recorder.Stop(ctx); stopErr != nil {
		log.Printf("静止画保存の停止に失敗しました: %v", stopErr)
	}

	// HTTPの停止後にカメラを解放する（配信中のハンドラを先に終わらせる）
	s.closeCamera()

	if err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}

// closeCamera はコントローラを解放して参照をクリアする
func (s *Server) closeCamera() {
	if ctrl := s.camera.Swap(nil); ctrl != nil {
		if err := ctrl.Close(); err != nil {
			log.Printf("カメラのクローズに失敗しました: %v", err)
		}
	}
}
