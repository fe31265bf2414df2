package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"owl-alerts/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ImageFetcher 下载告警图片
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (*domain.AlertImage, error)
}

// RestyImageFetcher 基于 resty 的图片下载
type RestyImageFetcher struct {
	httpClient *resty.Client
	maxBytes   int64
	logger     *zap.Logger
}

// NewRestyImageFetcher 创建图片下载客户端
func NewRestyImageFetcher(timeout time.Duration, maxBytes int64, logger *zap.Logger) *RestyImageFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "image/*")

	return &RestyImageFetcher{
		httpClient: client,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Fetch 下载图片：只接受 http(s)、2xx、image/* 且不超过 maxBytes
func (f *RestyImageFetcher) Fetch(ctx context.Context, imageURL string) (*domain.AlertImage, error) {
	u, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.NewValidationError("image_url", fmt.Sprintf("%q is not an http(s) URL", imageURL))
	}

	resp, err := f.httpClient.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		f.logger.Error("Image download failed",
			zap.String("url", u.Redacted()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return nil, domain.NewValidationError("image_url", fmt.Sprintf("download returned status %d", resp.StatusCode()))
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header().Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, domain.NewValidationError("image_url", fmt.Sprintf("content type %q is not an image", resp.Header().Get("Content-Type")))
	}

	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, domain.NewValidationError("image_url", fmt.Sprintf("image exceeds %d bytes", f.maxBytes))
	}
	if len(data) == 0 {
		return nil, domain.NewValidationError("image_url", "image is empty")
	}

	f.logger.Debug("Image downloaded",
		zap.String("url", u.Redacted()),
		zap.String("mime_type", mediaType),
		zap.Int("bytes", len(data)),
	)
	return &domain.AlertImage{Blob: data, MimeType: mediaType}, nil
}
