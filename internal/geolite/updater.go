package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"greenweb/internal/config"
	"greenweb/internal/security"
)

const (
	asnEditionID = "GeoLite2-ASN"
	userAgent    = "greenweb-geolite-updater/1.0"
)

var (
	maxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"

	updateGroup singleflight.Group
	httpClient  = &http.Client{Timeout: 2 * time.Minute}
)

var (
	// ErrNoAPIKey indicates that the GeoLite API key has not been configured.
	ErrNoAPIKey = errors.New("geolite: api key is not configured")
)

// Updater downloads fresh copies of the ASN database into a Reader's directory.
type Updater struct {
	reader      *Reader
	distributor *Distributor
}

func NewUpdater(reader *Reader, distributor *Distributor) *Updater {
	return &Updater{reader: reader, distributor: distributor}
}

// Update downloads the ASN edition using the configured API key and reloads
// the reader. It returns true when an update was performed.
func (u *Updater) Update(ctx context.Context) (bool, error) {
	result, err, _ := updateGroup.Do("update", func() (interface{}, error) {
		apiKey, err := security.RevealSecret(strings.TrimSpace(config.GetConfig().GeoLite.APIKey))
		if err != nil {
			return false, fmt.Errorf("geolite api key: %w", err)
		}
		if apiKey == "" {
			return false, ErrNoAPIKey
		}

		if err := u.reader.EnsureDir(); err != nil {
			return false, fmt.Errorf("ensure data dir: %w", err)
		}

		if err := downloadEdition(ctx, apiKey, u.reader.FilePath()); err != nil {
			return false, err
		}

		if err := u.reader.Reload(); err != nil {
			return false, fmt.Errorf("reload geolite: %w", err)
		}

		if err := config.MarkGeoLiteUpdated(time.Now().UTC()); err != nil {
			log.Warn("Failed to persist GeoLite updated timestamp", "error", err)
		}

		if u.distributor != nil {
			if err := u.distributor.Publish(ctx); err != nil {
				log.Warn("Failed to publish GeoLite database to redis", "error", err)
			}
		}

		return true, nil
	})
	if err != nil {
		return false, err
	}

	updated, _ := result.(bool)
	return updated, nil
}

func downloadEdition(ctx context.Context, apiKey, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildDownloadURL(apiKey, asnEditionID), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", asnEditionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", asnEditionID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return extractEdition(resp.Body, destPath)
}

// extractEdition copies the mmdb file named like destPath out of a tar.gz archive.
func extractEdition(archive io.Reader, destPath string) error {
	gzipReader, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", asnEditionID, err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	targetBase := filepath.Base(destPath)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", asnEditionID, err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != targetBase {
			continue
		}

		if err := writeToFile(destPath, tarReader); err != nil {
			return fmt.Errorf("%s: write file: %w", asnEditionID, err)
		}
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", asnEditionID)
}

// writeToFile replaces destPath atomically through a temp file in the same directory.
func writeToFile(destPath string, data io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	return os.Rename(tmpFile.Name(), destPath)
}

func buildDownloadURL(apiKey, edition string) string {
	query := url.Values{}
	query.Set("edition_id", edition)
	query.Set("license_key", apiKey)
	query.Set("suffix", "tar.gz")
	return maxMindDownloadURL + "?" + query.Encode()
}

// Available reports whether the reader behind u has a database loaded.
func (u *Updater) Available() bool {
	return u != nil && u.reader != nil && u.reader.Available()
}
