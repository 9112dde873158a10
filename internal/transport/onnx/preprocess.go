// Package onnx runs a ResNet-style image model through ONNX Runtime.
package onnx

import (
	"github.com/kailas-cloud/vecsight/internal/imaging"
)

const (
	resizeShorter = 256
	cropSize      = 224
	channels      = 3
)

var (
	imagenetMean = [channels]float32{0.485, 0.456, 0.406}
	imagenetStd  = [channels]float32{0.229, 0.224, 0.225}
)

// inputShape is the NCHW shape of one preprocessed image.
func inputShape() []int64 {
	return []int64{1, channels, cropSize, cropSize}
}

// Preprocess decodes data and renders it as a normalized NCHW float32 tensor:
// shorter side to 256, center crop 224x224, scale to [0,1], ImageNet mean/std.
func Preprocess(data []byte) ([]float32, error) {
	img, err := imaging.Prepare(data, resizeShorter, cropSize)
	if err != nil {
		return nil, err
	}

	out := make([]float32, channels*cropSize*cropSize)
	plane := cropSize * cropSize
	for y := 0; y < cropSize; y++ {
		for x := 0; x < cropSize; x++ {
			px := img.RGBAAt(x, y)
			i := y*cropSize + x
			out[i] = normalize(px.R, 0)
			out[plane+i] = normalize(px.G, 1)
			out[2*plane+i] = normalize(px.B, 2)
		}
	}
	return out, nil
}

func normalize(v uint8, c int) float32 {
	return (float32(v)/255 - imagenetMean[c]) / imagenetStd[c]
}
