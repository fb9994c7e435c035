package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"imagescan/internal/biz"
	"imagescan/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultDownloadLimit   = 32 * 1024 * 1024
	defaultDownloadTimeout = 30 * time.Second
)

type httpDownloader struct {
	client *http.Client
	limit  int64
	log    *log.Helper
}

// NewDownloader creates the image downloader.
func NewDownloader(c *conf.Scanner, logger log.Logger) biz.Downloader {
	limit, timeout := int64(defaultDownloadLimit), defaultDownloadTimeout
	if c.DownloadLimit > 0 {
		limit = c.DownloadLimit
	}
	if d := c.DownloadTimeout.AsDuration(); d > 0 {
		timeout = d
	}
	return &httpDownloader{
		client: &http.Client{Timeout: timeout},
		limit:  limit,
		log:    log.NewHelper(logger),
	}
}

func (d *httpDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > d.limit {
		return nil, fmt.Errorf("download %s: %d bytes exceeds limit %d", url, resp.ContentLength, d.limit)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > d.limit {
		return nil, fmt.Errorf("download %s: body exceeds limit %d", url, d.limit)
	}
	d.log.Debugf("downloaded %d bytes from %s", len(data), url)
	return data, nil
}
