// Package face holds face descriptors and the machinery that produces them:
// the detector contract, a bounded extraction pool and the model readiness
// lifecycle.
package face

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoFace            = errors.New("no face detected in image")
	ErrExtractFailed     = errors.New("face extraction failed")
	ErrMultipleFaces     = errors.New("more than one face detected in image")
	ErrDimensionMismatch = errors.New("descriptor dimensions differ")
	ErrBusy              = errors.New("face extraction is busy")
	ErrTimeout           = errors.New("face extraction timed out")
	ErrNotReady          = errors.New("face models are not ready")
)

// Descriptor is a fixed-length embedding of one face. Descriptors are only
// comparable when produced by the same model.
type Descriptor []float32

// Detector returns a descriptor for every face found in an encoded image.
type Detector interface {
	Detect(ctx context.Context, image []byte, filename string) ([]Descriptor, error)
}

// ExtractOne returns the descriptor of the single face in image. Detector
// failures that are not retryable are wrapped in ErrExtractFailed.
func ExtractOne(ctx context.Context, d Detector, image []byte, filename string) (Descriptor, error) {
	faces, err := d.Detect(ctx, image, filename)
	if err != nil {
		if Retryable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrExtractFailed, err)
	}
	switch len(faces) {
	case 0:
		return nil, ErrNoFace
	case 1:
		return faces[0], nil
	default:
		return nil, fmt.Errorf("%w: found %d", ErrMultipleFaces, len(faces))
	}
}

// Distance is the Euclidean distance between a and b.
func Distance(a, b Descriptor) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Retryable reports whether err is a transient extraction failure the caller
// may retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotReady)
}
