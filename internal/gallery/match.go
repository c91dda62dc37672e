package gallery

import (
	"context"
	"fmt"

	"facegallery/internal/face"
)

// DefaultThreshold is the distance below which two descriptors are taken
// to be the same person.
const DefaultThreshold = 0.6

// FindMatches returns the candidates whose descriptor is strictly closer
// than threshold to query, in candidate order. Candidates without a
// descriptor are skipped. A length mismatch is reported, never skipped.
func FindMatches(query face.Descriptor, candidates []Image, threshold float64) ([]Image, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query descriptor", face.ErrDimensionMismatch)
	}
	var out []Image
	for _, img := range candidates {
		if len(img.FaceDescriptor) == 0 {
			continue
		}
		d, err := face.Distance(query, img.FaceDescriptor)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", img.ID, err)
		}
		if d < threshold {
			out = append(out, img)
		}
	}
	return out, nil
}

// ScanMatcher matches by loading every image and comparing in process.
type ScanMatcher struct {
	Images ImageStore
}

func (m ScanMatcher) MatchImages(ctx context.Context, query face.Descriptor, threshold float64) ([]Image, error) {
	all, err := m.Images.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	return FindMatches(query, all, threshold)
}
