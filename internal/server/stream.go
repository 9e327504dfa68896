package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kenbikyo/internal/camera"
)

const (
	// mjpegBoundary はマルチパートストリームの境界文字列
	mjpegBoundary = "frame"

	// noFramePollInterval はフレーム未着時の再試行間隔
	noFramePollInterval = 10 * time.Millisecond

	// streamPacingInterval は最新スナップショットが前回送信と同一だった
	// 場合の待ち時間。フレーム未着の待ちとは別に、配信ループが
	// カメラのフレームレートを超えて空回りしないための間隔
	streamPacingInterval = 10 * time.Millisecond

	// wsFrameInterval はWebSocket配信のフレーム間隔（約30fps）
	wsFrameInterval = 33 * time.Millisecond
)

// upgrader はWebSocketアップグレード用の設定
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// ローカルネットワーク内の利用を想定し、オリジンチェックは行わない
		return true
	},
}

// handleGetStream はMJPEGストリーミングエンドポイントの実装
// 接続ごとに独立したループで最新フレームをエンコードして配信する
func (s *Server) handleGetStream(c *gin.Context) {
	ctrl := s.requireCamera(c)
	if ctrl == nil {
		return
	}

	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mjpegBoundary))
	c.Header("Cache-Control", "no-store")
	c.Header("Connection", "close")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		errorJSON(c, http.StatusInternalServerError,
			"streaming_unsupported", "ストリーミングがサポートされていません")
		return
	}

	clientID := uuid.New().String()[:8]
	log.Printf("MJPEGストリーミング開始: client=%s remote=%s", clientID, c.ClientIP())
	defer log.Printf("MJPEGストリーミング終了: client=%s", clientID)

	bgr := ctrl.ByteOrderBGR()
	ctx := c.Request.Context()

	var lastFrame *camera.Frame
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, err := ctrl.LatestFrame()
		if err != nil {
			if errors.Is(err, camera.ErrNoFrame) {
				time.Sleep(noFramePollInterval)
				continue
			}
			return
		}
		// 同じスナップショットを2度送らない
		if f == lastFrame {
			time.Sleep(streamPacingInterval)
			continue
		}
		lastFrame = f

		data, err := encodeJPEG(f.Image(bgr))
		if err != nil {
			log.Printf("JPEGエンコードに失敗しました: client=%s err=%v", clientID, err)
			continue
		}

		_, err = fmt.Fprintf(c.Writer,
			"--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
			mjpegBoundary, len(data))
		if err != nil {
			return
		}
		if _, err := c.Writer.Write(data); err != nil {
			return
		}
		if _, err := fmt.Fprint(c.Writer, "\r\n"); err != nil {
			return
		}
		flusher.Flush()
	}
}

// handleGetWebSocket はWebSocketストリーミングエンドポイントの実装
// JPEGフレームをバイナリメッセージとして一定間隔で配信する
func (s *Server) handleGetWebSocket(c *gin.Context) {
	ctrl := s.requireCamera(c)
	if ctrl == nil {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocketアップグレードに失敗しました: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()[:8]
	log.Printf("WebSocketストリーミング開始: client=%s remote=%s", clientID, c.ClientIP())
	defer log.Printf("WebSocketストリーミング終了: client=%s", clientID)

	// クライアントからの切断を検知するための読み取りゴルーチン
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	bgr := ctrl.ByteOrderBGR()
	ticker := time.NewTicker(wsFrameInterval)
	defer ticker.Stop()

	var lastFrame *camera.Frame
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		f, err := ctrl.LatestFrame()
		if err != nil {
			continue
		}
		if f == lastFrame {
			continue
		}
		lastFrame = f

		data, err := encodeJPEG(f.Image(bgr))
		if err != nil {
			log.Printf("JPEGエンコードに失敗しました: client=%s err=%v", clientID, err)
			continue
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}
}
