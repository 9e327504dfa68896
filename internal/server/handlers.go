package server

import (
	"errors"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kenbikyo/internal/camera"
	"kenbikyo/internal/config"
)

// GainRequest はゲイン設定リクエストのボディ
type GainRequest struct {
	// 0も有効値のためポインタで必須判定する
	Gain *int `json:"gain" binding:"required"` // アナログゲイン（%、ベンダー資料では100〜300）
}

// ExposureRequest は露出設定リクエストのボディ
type ExposureRequest struct {
	// 0はデバイス下限へのクランプ要求として有効値。ポインタで必須判定する
	Us *int `json:"us" binding:"required"` // 露出時間（µs）
}

// AutoExpRequest は自動露出設定リクエストのボディ
type AutoExpRequest struct {
	// falseも有効値のためポインタで必須判定する
	Enabled *bool `json:"enabled" binding:"required"`
}

// ResolutionRequest は解像度設定リクエストのボディ
type ResolutionRequest struct {
	Mode string `json:"mode" binding:"required"` // "high" | "mid" | "low"
}

// ErrorResponse はエラー応答の共通形式
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// errorJSON はエラー応答を書き込む
func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// requireCamera は接続済みコントローラを取得する
// 未接続なら503を書き込んでnilを返す
func (s *Server) requireCamera(c *gin.Context) *camera.Controller {
	ctrl := s.controller()
	if ctrl == nil {
		errorJSON(c, http.StatusServiceUnavailable,
			"camera_not_connected", "カメラが接続されていません")
		return nil
	}
	return ctrl
}

// handleHealth はヘルスチェックエンドポイントの実装
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleGetStatus はカメラ状態取得エンドポイントの実装
func (s *Server) handleGetStatus(c *gin.Context) {
	ctrl := s.requireCamera(c)
	if ctrl == nil {
		return
	}

	info, err := ctrl.Status()
	if err != nil {
		if errors.Is(err, camera.ErrNotConnected) {
			errorJSON(c, http.StatusServiceUnavailable,
				"camera_not_connected", "カメラが接続されていません")
			return
		}
		errorJSON(c, http.StatusInternalServerError, "status_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, info)
}

// handleSetGain はゲイン設定エンドポイントの実装
// 手動制御を確実にするため、先に自動露出を無効化する
func (s *Server) handleSetGain(c *gin.Context) {
	var req GainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctrl := s.requireCamera(c)
	if ctrl == nil {
		return
	}

	if err := ctrl.SetAutoExposure(false); err != nil {
		errorJSON(c, http.StatusInternalServerError, "set_gain_failed", err.Error())
		return
	}
	if err := ctrl.SetGain(*req.Gain); err != nil {
		errorJSON(c, http.StatusInternalServerError, "set_gain_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"gain": *req.Gain, "auto_exposure": false})
}

// handleSetExposure は露出設定エンドポイントの実装
// 先に自動露出を無効化し、デバイス範囲へクランプした適用値を返す
func (s *Server) handleSetExposure(c *gin.Context) {
	var req ExposureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctrl := s.requireCamera(c)
	if ctrl == nil {
		return
	}

	if err := ctrl.SetAutoExposure(false); err != nil {
		errorJSON(c, http.StatusInternalServerError, "set_exposure_failed", err.Error())
		return
	}
	applied, err := ctrl.SetExposure(*req.Us)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "set_exposure_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"exposure_us": applied, "auto_exposure": false})
}

// handleAutoExposure は自動露出設定エンドポイントの実装
func (s *Server) handleAutoExposure(c *gin.Context) {
	var req AutoExpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctrl := s.requireCamera(c)
	if ctrl == nil {
		return
	}

	if err := ctrl.SetAutoExposure(*req.Enabled); err != nil {
		errorJSON(c, http.StatusInternalServerError, "auto_exposure_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"auto_exposure": *req.Enabled})
}

// handleSetResolution は解像度設定エンドポイントの実装
func (s *Server) handleSetResolution(c *gin.Context) {
	var req ResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctrl := s.requireCamera(c)
	if ctrl == nil {
		return
	}

	res, err := ctrl.SetResolution(req.Mode)
	if err != nil {
		switch {
		case errors.Is(err, camera.ErrInvalidMode):
			errorJSON(c, http.StatusBadRequest, "invalid_mode", err.Error())
		case errors.Is(err, camera.ErrNotConnected):
			errorJSON(c, http.StatusServiceUnavailable, "camera_not_connected", err.Error())
		default:
			// 停止後の途中失敗。コントローラはStatusErrorのまま残る
			errorJSON(c, http.StatusInternalServerError, "resolution_change_failed", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"resolution": strings.ToLower(req.Mode),
		"width":      res.Width,
		"height":     res.Height,
	})
}

// handleGetFrame は最新フレームをPNGで返すエンドポイントの実装
// widthクエリで縮小指定ができる（アスペクト比は維持される）
func (s *Server) handleGetFrame(c *gin.Context) {
	ctrl := s.requireCamera(c)
	if ctrl == nil {
		return
	}

	f, err := ctrl.LatestFrame()
	if err != nil {
		if errors.Is(err, camera.ErrNoFrame) {
			errorJSON(c, http.StatusServiceUnavailable,
				"no_frame", "フレームがまだ取得されていません")
			return
		}
		errorJSON(c, http.StatusInternalServerError, "frame_failed", err.Error())
		return
	}

	// エンコードはスナップショット参照の取得後、ロックの外で行う
	var img image.Image = f.Image(ctrl.ByteOrderBGR())

	if q := c.Query("width"); q != "" {
		width, err := strconv.Atoi(q)
		if err != nil || width <= 0 {
			errorJSON(c, http.StatusBadRequest, "invalid_request",
				"widthは正の整数で指定してください")
			return
		}
		if width < f.Width {
			img = resizeImage(img, width)
		}
	}

	data, err := encodePNG(img)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", data)
}

// handleGetPing はヘルスチェックエンドポイントの実装
//
// 応答は以下の3状態のいずれか:
//   - connected:      設定されたシリアルのデバイスが現在接続されている
//   - not-connected:  シリアルは設定済みだが、デバイスが見つからない
//   - not-configured: シリアルが設定されていない
func (s *Server) handleGetPing(c *gin.Context) {
	// 実行中の設定更新を拾うため、呼び出しごとに再読み込みする
	dev := config.LoadDevice(config.DeviceConfigPath())

	if !dev.IsConfigured() {
		c.JSON(http.StatusOK, gin.H{"status": "not-configured", "name": nil})
		return
	}

	status := "not-connected"
	if camera.SerialPresent(s.sdk, s.controller(), dev.SerialNumber) {
		status = "connected"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "name": dev.Name})
}

// handleGetCameras は検出カメラ一覧エンドポイントの実装
// 名前とシリアルのみを返し、SDK固有のIDは公開しない
func (s *Server) handleGetCameras(c *gin.Context) {
	cams := camera.ListCameras(s.sdk)
	if cams == nil {
		cams = []camera.CameraInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"cameras": cams})
}

// handleRoot はルートパスのハンドラ
func (s *Server) handleRoot(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, `<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>Kenbikyo - 顕微鏡カメラサーバー</title>
</head>
<body>
    <h1>Kenbikyo 顕微鏡カメラサーバー</h1>
    <p>サーバーが正常に起動しています。</p>
    <p>ライブビュー:</p>
    <img src="/get_stream" alt="live view">
    <p>ステータス: <a href="/get_status">/get_status</a></p>
    <p>ヘルスチェック: <a href="/get_ping">/get_ping</a></p>
    <p>静止画: <a href="/get_frame">/get_frame</a></p>
</body>
</html>`)
}
