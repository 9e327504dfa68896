package server

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

// jpegQuality はストリーミング用JPEGの品質
const jpegQuality = 80

// resizeImage は幅を指定して縮小する（アスペクト比は維持される）
func resizeImage(img image.Image, width int) image.Image {
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// encodePNG は画像をPNGへエンコードする
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("PNGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeJPEG は画像をストリーミング用品質のJPEGへエンコードする
func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
