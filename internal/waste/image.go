package waste

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyImage is returned when an image carries no payload.
var ErrEmptyImage = errors.New("image is empty")

// dataURLPrefix matches the self-describing prefix produced by browsers for
// the raster formats the classification service accepts. Other encodings are
// left in place.
var dataURLPrefix = regexp.MustCompile(`^data:(image/(?:png|jpeg|jpg|webp));base64,`)

// EncodedImage is a base64 image payload with an optional declared media type.
type EncodedImage struct {
	MediaType string // e.g. "image/png"; empty when the input had no recognized prefix
	Data      string // base64 payload without any data URL prefix
}

// ParseEncodedImage strips a recognized data URL prefix from s. Input
// without a recognized prefix is passed through unchanged.
func ParseEncodedImage(s string) (EncodedImage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EncodedImage{}, ErrEmptyImage
	}

	m := dataURLPrefix.FindStringSubmatch(s)
	if m == nil {
		return EncodedImage{Data: s}, nil
	}

	img := EncodedImage{MediaType: m[1], Data: s[len(m[0]):]}
	if img.Data == "" {
		return EncodedImage{}, ErrEmptyImage
	}
	return img, nil
}

// EncodeImage builds an EncodedImage from raw image bytes.
func EncodeImage(data []byte, mimeType string) EncodedImage {
	return EncodedImage{
		MediaType: mimeType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}
}

// Bytes decodes the payload. Both padded and unpadded standard base64 are
// accepted.
func (e EncodedImage) Bytes() ([]byte, error) {
	if e.Data == "" {
		return nil, ErrEmptyImage
	}
	data, err := base64.StdEncoding.DecodeString(e.Data)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(e.Data); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("invalid base64 payload: %w", err)
}

// DataURL renders the image in self-describing form. JPEG is assumed when no
// media type was declared.
func (e EncodedImage) DataURL() string {
	mediaType := e.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return "data:" + mediaType + ";base64," + e.Data
}
