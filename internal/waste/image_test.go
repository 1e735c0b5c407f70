package waste

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncodedImage_StripsRecognizedPrefixes(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		mediaType string
	}{
		{"png", "data:image/png;base64,iVBORw0KGgo=", "image/png"},
		{"jpeg", "data:image/jpeg;base64,iVBORw0KGgo=", "image/jpeg"},
		{"jpg", "data:image/jpg;base64,iVBORw0KGgo=", "image/jpg"},
		{"webp", "data:image/webp;base64,iVBORw0KGgo=", "image/webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ParseEncodedImage(tt.input)
			require.NoError(t, err)
			assert.Equal(t, "iVBORw0KGgo=", img.Data)
			assert.Equal(t, tt.mediaType, img.MediaType)
		})
	}
}

func TestParseEncodedImage_PassesThroughRawBase64(t *testing.T) {
	img, err := ParseEncodedImage("  /9j/4AAQSkZJRg==\n")
	require.NoError(t, err)
	assert.Equal(t, "/9j/4AAQSkZJRg==", img.Data)
	assert.Empty(t, img.MediaType)
}

func TestParseEncodedImage_UnrecognizedPrefixIsNotStripped(t *testing.T) {
	input := "data:image/gif;base64,R0lGODlh"
	img, err := ParseEncodedImage(input)
	require.NoError(t, err)
	assert.Equal(t, input, img.Data)

	_, err = img.Bytes()
	assert.Error(t, err)
}

func TestParseEncodedImage_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "data:image/png;base64,"} {
		_, err := ParseEncodedImage(input)
		assert.ErrorIs(t, err, ErrEmptyImage, "input %q", input)
	}
}

func TestEncodedImage_Bytes(t *testing.T) {
	img := EncodeImage([]byte{0xff, 0xd8, 0xff}, "image/jpeg")
	data, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

	unpadded := EncodedImage{Data: "/9j/"}
	data, err = unpadded.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

	_, err = EncodedImage{Data: "not base64!"}.Bytes()
	assert.Error(t, err)
}

func TestEncodedImage_DataURLRoundTrip(t *testing.T) {
	img := EncodeImage([]byte("abc"), "image/png")
	parsed, err := ParseEncodedImage(img.DataURL())
	require.NoError(t, err)
	assert.Equal(t, img, parsed)

	assert.Equal(t, "data:image/jpeg;base64,YWJj", EncodedImage{Data: "YWJj"}.DataURL())
}
