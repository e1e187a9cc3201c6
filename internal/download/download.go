// Package download fetches the IMDb dataset dumps over HTTP, skipping files
// whose Last-Modified header has not changed since the previous run.
package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pimdb/pimdb/internal/dataset"
)

// DefaultBaseURL is where IMDb publishes the dataset dumps.
const DefaultBaseURL = "https://datasets.imdbws.com/"

// lastModifiedFileName sits next to the downloaded dumps.
const lastModifiedFileName = ".pimdb_last_modified.json"

// Downloader fetches dataset dumps into a local directory.
type Downloader struct {
	// BaseURL defaults to DefaultBaseURL; tests point it at a local server.
	BaseURL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
	Logger *slog.Logger
}

func (d *Downloader) baseURL() string {
	if d.BaseURL != "" {
		return d.BaseURL
	}
	return DefaultBaseURL
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Fetch downloads one dataset dump into targetDir. With onlyIfNewer the
// download is skipped when the server's Last-Modified header matches the
// cached one from the previous fetch.
func (d *Downloader) Fetch(ctx context.Context, ds dataset.Name, targetDir string, onlyIfNewer bool) error {
	sourceURL := d.baseURL() + ds.Filename()
	targetPath := filepath.Join(targetDir, ds.Filename())

	var cache *lastModifiedMap
	if onlyIfNewer {
		cache = loadLastModified(filepath.Join(targetDir, lastModifiedFileName), d.logger())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", sourceURL, resp.Status)
	}

	lastModified := resp.Header.Get("Last-Modified")
	if onlyIfNewer && !cache.isModified(sourceURL, lastModified) {
		d.logger().Info("dataset is up to date, skipping download",
			"dataset", string(ds), "url", sourceURL)
		return nil
	}

	d.logger().Info("downloading dataset",
		"url", sourceURL, "target", targetPath, "bytes", resp.ContentLength)
	if err := writeFile(targetPath, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", sourceURL, err)
	}

	if onlyIfNewer {
		cache.update(sourceURL, lastModified)
		if err := cache.write(); err != nil {
			d.logger().Warn("cannot write last modified map", "path", cache.path, "error", err)
		}
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// lastModifiedMap caches the Last-Modified header per URL in a JSON file.
type lastModifiedMap struct {
	path    string
	entries map[string]string
}

// loadLastModified reads the cache; a missing or unreadable file just means
// every download happens.
func loadLastModified(path string, logger *slog.Logger) *lastModifiedMap {
	m := &lastModifiedMap{path: path, entries: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("no last modified map, enforcing downloads", "path", path)
		return m
	}
	if err := json.Unmarshal(data, &m.entries); err != nil {
		logger.Warn("cannot process last modified map, enforcing downloads",
			"path", path, "error", err)
		m.entries = make(map[string]string)
	}
	return m
}

func (m *lastModifiedMap) isModified(url, current string) bool {
	return current == "" || m.entries[url] != current
}

func (m *lastModifiedMap) update(url, lastModified string) {
	m.entries[url] = lastModified
}

func (m *lastModifiedMap) write() error {
	data, err := json.Marshal(m.entries)
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}
