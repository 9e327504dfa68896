package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"kenbikyo/internal/camera"
)

// handleGetSnapshots は保存済み静止画の一覧取得エンドポイントの実装
func (s *Server) handleGetSnapshots(c *gin.Context) {
	stills, err := s.recorder.ListStills()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "snapshots_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": stills,
		"status":    s.recorder.Status(),
	})
}

// handleSaveSnapshot は静止画を1枚保存するエンドポイントの実装
func (s *Server) handleSaveSnapshot(c *gin.Context) {
	still, err := s.recorder.SaveStill()
	if err != nil {
		switch {
		case errors.Is(err, camera.ErrNotConnected):
			errorJSON(c, http.StatusServiceUnavailable,
				"camera_not_connected", "カメラが接続されていません")
		case errors.Is(err, camera.ErrNoFrame):
			errorJSON(c, http.StatusServiceUnavailable,
				"no_frame", "フレームがまだ取得されていません")
		default:
			errorJSON(c, http.StatusInternalServerError, "save_snapshot_failed", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, still)
}

// handleBuildTimelapse は保存済み静止画からタイムラプス動画を生成する
// エンドポイントの実装。生成はリクエスト内で同期的に行う
func (s *Server) handleBuildTimelapse(c *gin.Context) {
	stills, err := s.recorder.ListStills()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "timelapse_failed", err.Error())
		return
	}
	if len(stills) == 0 {
		errorJSON(c, http.StatusBadRequest, "no_snapshots", "保存済みの静止画がありません")
		return
	}

	ctx := c.Request.Context()
	if err := s.builder.ValidateFFmpeg(ctx); err != nil {
		errorJSON(c, http.StatusInternalServerError, "ffmpeg_unavailable", err.Error())
		return
	}

	cfg := s.recorder.Config()
	name := fmt.Sprintf("timelapse_%s.mp4", time.Now().Format("2006-01-02"))
	outputPath := filepath.Join(cfg.OutputDir, name)

	if err := s.builder.Build(ctx, outputPath, stills, cfg.Quality); err != nil {
		errorJSON(c, http.StatusInternalServerError, "timelapse_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video":  outputPath,
		"frames": len(stills),
	})
}
