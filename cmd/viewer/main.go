// viewer はサーバーのMJPEGストリームを表示するデスクトップビューア
//
// ブラウザを開かずにピント合わせや視野の確認を行うための
// 開発・検査用ツール。サーバー本体とは独立して動作する。
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// viewerApp はビューアの状態とUI要素を保持する
type viewerApp struct {
	fyneApp fyne.App
	window  fyne.Window

	preview     *canvas.Image
	statusLabel *widget.Label
	noFeedLabel *widget.Label

	// frameChan はストリーミングゴルーチンからUI更新ループへフレームを渡す
	frameChan chan image.Image

	// FPS統計
	mu         sync.Mutex
	frameCount int
	lastTick   time.Time
	fps        float64
}

func newViewerApp() *viewerApp {
	a := app.New()
	w := a.NewWindow("Kenbikyo ビューア")

	v := &viewerApp{
		fyneApp:   a,
		window:    w,
		frameChan: make(chan image.Image, 3),
		lastTick:  time.Now(),
	}

	v.preview = canvas.NewImageFromImage(nil)
	v.preview.FillMode = canvas.ImageFillContain
	v.preview.ScaleMode = canvas.ImageScaleFastest

	v.statusLabel = widget.NewLabel("接続中...")
	v.noFeedLabel = widget.NewLabel("映像なし")
	v.noFeedLabel.Alignment = fyne.TextAlignCenter

	content := container.NewBorder(
		nil,
		v.statusLabel,
		nil,
		nil,
		container.NewStack(v.noFeedLabel, v.preview),
	)
	w.SetContent(content)
	w.Resize(fyne.NewSize(960, 720))

	return v
}

// uiUpdater はフレームチャンネルを読んでプレビューを更新するループ
func (v *viewerApp) uiUpdater(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-v.frameChan:
			if !ok {
				return
			}
			v.displayFrame(frame)
		}
	}
}

// displayFrame はフレームを表示し、FPS統計を更新する
func (v *viewerApp) displayFrame(frame image.Image) {
	v.mu.Lock()
	v.frameCount++
	now := time.Now()
	if elapsed := now.Sub(v.lastTick); elapsed >= time.Second {
		v.fps = float64(v.frameCount) / elapsed.Seconds()
		v.frameCount = 0
		v.lastTick = now
	}
	fps := v.fps
	v.mu.Unlock()

	v.preview.Image = withFpsOverlay(frame, fps)
	v.preview.Refresh()

	if v.noFeedLabel.Visible() {
		v.noFeedLabel.Hide()
	}

	b := frame.Bounds()
	v.statusLabel.SetText(fmt.Sprintf("接続中 | %dx%d | %.1f fps", b.Dx(), b.Dy(), fps))
}

// withFpsOverlay はフレーム左上へFPSを描き込んだコピーを返す
func withFpsOverlay(img image.Image, fps float64) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(10), Y: fixed.I(20)},
	}
	d.DrawString(fmt.Sprintf("%.1f fps", fps))
	return out
}

// streamLoop はMJPEGストリームへ接続し、デコードしたフレームを配る
// 接続が切れた場合は一定間隔で再接続を試みる
func (v *viewerApp) streamLoop(ctx context.Context, url string) {
	for {
		if err := v.readStream(ctx, url); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("ストリームが切断されました（再接続します）: %v", err)
			v.statusLabel.SetText("再接続中...")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// readStream は1本のMJPEG接続を読み切る
func (v *viewerApp) readStream(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("ストリームへの接続に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("予期しないステータスコード: %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return fmt.Errorf("MJPEGストリームではありません: %s", resp.Header.Get("Content-Type"))
	}

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("パートの読み取りに失敗: %w", err)
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return fmt.Errorf("フレームデータの読み取りに失敗: %w", err)
		}

		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			// 壊れたフレームは読み飛ばす
			continue
		}

		select {
		case v.frameChan <- img:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// UIが追いつかない場合はフレームを落とす
		}
	}
}

func main() {
	var (
		host = flag.String("host", "127.0.0.1", "サーバーのホスト")
		port = flag.Int("port", 8080, "サーバーのポート")
	)
	flag.Parse()

	url := fmt.Sprintf("http://%s:%d/get_stream", *host, *port)
	log.Printf("ストリームへ接続します: %s", url)

	v := newViewerApp()

	ctx, cancel := context.WithCancel(context.Background())
	v.window.SetOnClosed(cancel)

	go v.streamLoop(ctx, url)
	go v.uiUpdater(ctx)

	v.window.ShowAndRun()
}
