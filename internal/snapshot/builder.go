package snapshot

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// Builder は保存済み静止画からタイムラプス動画を生成する
type Builder struct {
	tempDir string // 一時ファイル用ディレクトリ
}

// NewBuilder は新しいBuilderを作成する
func NewBuilder() *Builder {
	return &Builder{
		tempDir: filepath.Join(os.TempDir(), "kenbikyo-timelapse"),
	}
}

// ValidateFFmpeg はFFmpegが利用可能かチェックする
func (b *Builder) ValidateFFmpeg(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpegが見つかりません。インストールしてください: %w", err)
	}
	return nil
}

// Build は静止画一覧からタイムラプス動画を生成する
// qualityは1（低）〜5（高）
func (b *Builder) Build(ctx context.Context, outputPath string, stills []Still, quality int) error {
	if len(stills) == 0 {
		return fmt.Errorf("静止画がありません")
	}

	if err := os.MkdirAll(b.tempDir, 0755); err != nil {
		return fmt.Errorf("一時ディレクトリの作成に失敗: %w", err)
	}

	// 画像ファイルリストを作成
	listFile := filepath.Join(b.tempDir, fmt.Sprintf("images_%d.txt", time.Now().UnixNano()))
	if err := b.writeImageList(listFile, stills); err != nil {
		return fmt.Errorf("画像リストの作成に失敗: %w", err)
	}
	defer func() {
		_ = os.Remove(listFile)
	}()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-r", "30",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", qualityToCRF(quality),
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("動画の生成に失敗: %w (output: %s)", err, string(output))
	}
	return nil
}

// writeImageList はFFmpegのconcat用リストファイルを書き出す
func (b *Builder) writeImageList(listFile string, stills []Still) error {
	var content string
	for _, s := range stills {
		abs, err := filepath.Abs(s.FilePath)
		if err != nil {
			abs = s.FilePath
		}
		// 各フレームを0.033秒（30fpsの逆数）表示
		content += fmt.Sprintf("file '%s'\nduration 0.033\n", abs)
	}

	// 最後のフレームは追加の表示時間なし
	last := stills[len(stills)-1]
	if abs, err := filepath.Abs(last.FilePath); err == nil {
		content += fmt.Sprintf("file '%s'\n", abs)
	} else {
		content += fmt.Sprintf("file '%s'\n", last.FilePath)
	}

	return os.WriteFile(listFile, []byte(content), 0644)
}

// qualityToCRF は品質設定をFFmpegのCRF値に変換する
// 品質1(低) -> CRF28, 品質5(高) -> CRF18
func qualityToCRF(quality int) string {
	crf := 28.0 - float64(quality-1)*2.5
	if crf < 18 {
		crf = 18
	}
	if crf > 28 {
		crf = 28
	}
	return strconv.FormatFloat(crf, 'f', 1, 64)
}
