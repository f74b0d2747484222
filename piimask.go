// Package piimask provides the client-side workflow for masking personally
// identifiable information in images through a remote masking service.
package piimask

import (
	"context"
	"fmt"
	"strings"
)

// MaskStyle names a strategy the masking service applies to the PII regions
// it detects in an image.
type MaskStyle string

// Masking styles the service understands. The service defaults to rectangle
// and so does the client.
const (
	MaskRectangle MaskStyle = "rectangle"
	MaskBlur      MaskStyle = "blur"
)

// ParseMaskStyle converts s into a MaskStyle, tolerating case and
// surrounding spaces. Anything beyond the two supported styles is rejected.
func ParseMaskStyle(s string) (MaskStyle, error) {
	switch MaskStyle(strings.ToLower(strings.TrimSpace(s))) {
	case MaskRectangle:
		return MaskRectangle, nil
	case MaskBlur:
		return MaskBlur, nil
	}
	return "", fmt.Errorf("unknown mask style %q (want rectangle or blur)", s)
}

// Masker is the interface that wraps the basic Mask method.
//
// Mask submits one image together with the chosen masking style to the
// remote service and returns the processed image, or an error if the
// request or the remote processing failed. Implementations perform exactly
// one request per call and do not retry.
type Masker interface {
	Mask(ctx context.Context, f *File, style MaskStyle) (*MaskedImage, error)
}

// Presenter is the interface that groups methods for showing the most
// recent masked image and saving it to local disk.
//
// Present replaces the displayed image with img. Presenting nil clears the
// view and renders nothing; that is the expected state before the first
// success, not an error.
//
// Current returns the image being displayed, or nil when there is none.
//
// Download writes the displayed image under the fixed download file name
// and returns the written path. It fails when nothing is displayed or the
// write itself fails.
type Presenter interface {
	Present(img *MaskedImage)
	Current() *MaskedImage
	Download() (string, error)
}
