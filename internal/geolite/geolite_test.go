package geolite

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func buildArchive(t *testing.T, files map[string]string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		header := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write content: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestExtractEdition(t *testing.T) {
	dest := filepath.Join(t.TempDir(), ASNFileName)
	archive := buildArchive(t, map[string]string{
		"GeoLite2-ASN_20240102/LICENSE.txt":       "license",
		"GeoLite2-ASN_20240102/GeoLite2-ASN.mmdb": "mmdb-bytes",
	})

	if err := extractEdition(archive, dest); err != nil {
		t.Fatalf("extractEdition: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(data) != "mmdb-bytes" {
		t.Fatalf("extracted %q, want mmdb-bytes", data)
	}
}

func TestExtractEditionMissingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), ASNFileName)
	archive := buildArchive(t, map[string]string{"README": "nothing here"})

	if err := extractEdition(archive, dest); err == nil {
		t.Fatal("expected error when the archive has no mmdb file")
	}
}

func TestBuildDownloadURL(t *testing.T) {
	raw := buildDownloadURL("secret key", asnEditionID)
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	query := parsed.Query()
	if query.Get("edition_id") != "GeoLite2-ASN" || query.Get("license_key") != "secret key" || query.Get("suffix") != "tar.gz" {
		t.Fatalf("unexpected query %v", query)
	}
}

func TestReaderWithoutDatabase(t *testing.T) {
	reader, err := Open(t.TempDir())
	if err == nil {
		t.Fatal("Open on an empty directory should report the missing file")
	}
	if reader == nil || reader.Available() {
		t.Fatal("reader should exist but not be available")
	}

	if _, err := reader.LookupASN(netip.MustParseAddr("192.0.2.1")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("LookupASN error = %v, want ErrUnavailable", err)
	}
}

func TestDataDirFromEnv(t *testing.T) {
	t.Setenv("GEOLITE_DIR", "/srv/geolite")
	if got := DataDir(); got != "/srv/geolite" {
		t.Fatalf("DataDir = %q, want /srv/geolite", got)
	}
}
