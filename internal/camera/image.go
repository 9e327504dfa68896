package camera

import "image"

// Image はスナップショットを画像へ変換する
//
// 行はストライド（4バイト境界）で区切られているため、
// 行末のパディングを読み飛ばしながらコピーする。
// bgrがtrueの場合はバイト順を入れ替える。
func (f *Frame) Image(bgr bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))

	for y := 0; y < f.Height; y++ {
		src := f.Data[y*f.Stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			si := x * 3
			di := x * 4
			if bgr {
				dst[di+0] = src[si+2]
				dst[di+1] = src[si+1]
				dst[di+2] = src[si+0]
			} else {
				dst[di+0] = src[si+0]
				dst[di+1] = src[si+1]
				dst[di+2] = src[si+2]
			}
			dst[di+3] = 0xFF
		}
	}
	return img
}
