package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Pipeline converts a PNG artifact into an NCHW float tensor.
type Pipeline struct {
	size      int
	maxFrames int
}

// New returns a pipeline that resizes frames to size x size and keeps every
// second frame when there are more than maxFrames of them.
func New(size, maxFrames int) *Pipeline {
	return &Pipeline{size: size, maxFrames: maxFrames}
}

func (p *Pipeline) Build(raw []byte) (Tensor, error) {
	img, err := DecodeGray(raw)
	if err != nil {
		return Tensor{}, err
	}
	return p.BuildFrames([]*image.Gray{img})
}

// BuildFrames runs resize, subsample and axis reorder over decoded frames.
func (p *Pipeline) BuildFrames(frames []*image.Gray) (Tensor, error) {
	if len(frames) == 0 {
		return Tensor{}, fmt.Errorf("%w: no frames", ErrDecode)
	}

	resized := make([]*image.Gray, len(frames))
	for i, f := range frames {
		resized[i] = Resize(f, p.size)
	}
	resized = Subsample(resized, p.maxFrames)

	return Transpose(stackNHWC(resized), []int{0, 3, 1, 2})
}

// DecodeGray decodes PNG bytes into an 8-bit grayscale image.
func DecodeGray(raw []byte) (*image.Gray, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}

	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray, nil
}

// Resize scales src to size x size with bilinear interpolation.
func Resize(src *image.Gray, size int) *image.Gray {
	if b := src.Bounds(); b.Dx() == size && b.Dy() == size {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Subsample keeps every second frame once there are more than limit frames.
// limit <= 0 disables it.
func Subsample[T any](frames []T, limit int) []T {
	if limit <= 0 || len(frames) <= limit {
		return frames
	}
	out := make([]T, 0, (len(frames)+1)/2)
	for i := 0; i < len(frames); i += 2 {
		out = append(out, frames[i])
	}
	return out
}

// stackNHWC lays same-sized single-channel frames out as [N, H, W, 1].
func stackNHWC(frames []*image.Gray) Tensor {
	b := frames[0].Bounds()
	h, w := b.Dy(), b.Dx()

	t := Tensor{
		Shape: []int{len(frames), h, w, 1},
		Data:  make([]float32, 0, len(frames)*h*w),
	}
	for _, f := range frames {
		fb := f.Bounds()
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				t.Data = append(t.Data, float32(f.GrayAt(fb.Min.X+x, fb.Min.Y+y).Y))
			}
		}
	}
	return t
}
