// Package feed loads harvested authority records from JSONL or Parquet
// exports, downloading them first when they live behind a URL.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultCacheDir is where downloaded feeds are kept.
const DefaultCacheDir = "~/.cache/authdedup/feeds"

// DownloadConfig configures feed downloading
type DownloadConfig struct {
	CacheDir      string
	ForceDownload bool
	Token         string // bearer token for the harvester export endpoint
}

// Downloader fetches feed exports and caches them on disk
type Downloader struct {
	config DownloadConfig
	client *http.Client
	logger *slog.Logger
}

// NewDownloader creates a new feed downloader
func NewDownloader(config DownloadConfig, logger *slog.Logger) *Downloader {
	if config.CacheDir == "" {
		config.CacheDir = DefaultCacheDir
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Expand ~ to home directory
	if strings.HasPrefix(config.CacheDir, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			config.CacheDir = filepath.Join(homeDir, config.CacheDir[1:])
		}
	}

	return &Downloader{
		config: config,
		client: &http.Client{},
		logger: logger,
	}
}

// CachePath returns where the export at rawURL is cached.
func (d *Downloader) CachePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("feed URL has no file name: %s", rawURL)
	}
	return filepath.Join(d.config.CacheDir, u.Host, name), nil
}

// Download fetches the export unless it is already cached and returns the
// local path.
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	cachedPath, err := d.CachePath(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cachedPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	if !d.config.ForceDownload {
		if _, err := os.Stat(cachedPath); err == nil {
			d.logger.Info("Using cached feed", "path", cachedPath)
			return cachedPath, nil
		}
	}

	d.logger.Info("Downloading feed", "url", rawURL)
	if err := d.downloadFile(ctx, rawURL, cachedPath); err != nil {
		return "", fmt.Errorf("failed to download feed: %w", err)
	}

	d.logger.Info("Feed downloaded", "path", cachedPath)
	return cachedPath, nil
}

func (d *Downloader) downloadFile(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if d.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.config.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	tempPath := destPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("download failed: %w", err)
	}
	d.logger.Debug("Feed bytes written", "bytes", written)

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to move file: %w", err)
	}
	return nil
}

// ClearCache removes all cached feeds
func (d *Downloader) ClearCache() error {
	d.logger.Info("Clearing feed cache", "path", d.config.CacheDir)
	return os.RemoveAll(d.config.CacheDir)
}

// LoadOrDownload returns a loader for source, which is either a local path or
// an http(s) URL.
func LoadOrDownload(ctx context.Context, source string, config DownloadConfig, logger *slog.Logger) (*Loader, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return NewLoader(source, logger), nil
	}

	localPath, err := NewDownloader(config, logger).Download(ctx, source)
	if err != nil {
		return nil, err
	}
	return NewLoader(localPath, logger), nil
}
