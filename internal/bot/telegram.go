package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDownloadTimeout is the timeout for photo downloads
	DefaultDownloadTimeout = 30 * time.Second
	// MaxImageSize is the largest photo accepted (10MB)
	MaxImageSize = 10 * 1024 * 1024
)

// httpClient is reused for file downloads to avoid creating new clients per request
var httpClient = resty.New().SetDebug(false).SetTimeout(DefaultDownloadTimeout)

// downloadFileID resolves a Telegram file ID to its direct URL and downloads
// it. Returns the bytes and the media type reported by the server.
func downloadFileID(
	ctx context.Context,
	getFileDirectURL func(fileId string) (string, error),
	fileID string,
) ([]byte, string, error) {
	log.Info().Str("fileID", fileID).Msg("downloading file id")
	url, err := getFileDirectURL(fileID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get file URL: %w", err)
	}
	res, err := httpClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", err
	}
	if res.IsError() {
		return nil, "", fmt.Errorf("request failed: %v", res.Status())
	}

	body := res.Body()
	if len(body) > MaxImageSize {
		return nil, "", fmt.Errorf("image too large: %d bytes exceeds limit of %d bytes", len(body), MaxImageSize)
	}

	contentType := res.Header().Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		// Telegram file storage often omits a useful type
		contentType = http.DetectContentType(body)
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", fmt.Errorf("invalid content type: expected image/*, got %s", mediaType)
	}

	return body, mediaType, nil
}
