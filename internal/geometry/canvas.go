package geometry

import "math"

// MinSize 是像素换算后宽高的下限。旧数据本身就是近似值，过小的尺寸直接抬到下限而不是报错。
const MinSize = 0.01

// Canvas 描述旧版像素坐标所基于的参考画布。
type Canvas struct {
	Width  float64
	Height float64
}

// DefaultCanvas 是旧前端固定使用的 800x1000 画布，并非实际 PDF 页面尺寸。
var DefaultCanvas = Canvas{Width: 800, Height: 1000}

// Valid 要求宽高均为正数。
func (c Canvas) Valid() bool {
	return c.Width > 0 && c.Height > 0
}

// Normalize 把像素矩形换算为页面比例并裁剪到合法区间。
// 原点与尺寸分别裁剪，x+width 溢出的情况留给 Validate 处理。
func (c Canvas) Normalize(px Rect) Rect {
	return Rect{
		X:      clamp(px.X/c.Width, 0, 1),
		Y:      clamp(px.Y/c.Height, 0, 1),
		Width:  clamp(px.Width/c.Width, MinSize, 1),
		Height: clamp(px.Height/c.Height, MinSize, 1),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
