package geolite

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"greenweb/internal/support"
)

const (
	ASNFileName    = "GeoLite2-ASN.mmdb"
	defaultDataDir = "data/geolite"
)

var ErrUnavailable = errors.New("geolite: ASN database is not loaded")

// DataDir is where the mmdb files live, GEOLITE_DIR or data/geolite.
func DataDir() string {
	return support.GetEnv("GEOLITE_DIR", defaultDataDir)
}

// Reader answers ASN lookups from the GeoLite2-ASN database and can be reloaded
// in place after an update.
type Reader struct {
	dir string

	mu sync.RWMutex
	db *geoip2.Reader
}

// Open loads the ASN database from dir. The returned reader is usable even when
// loading fails; lookups then return ErrUnavailable until Reload succeeds.
func Open(dir string) (*Reader, error) {
	if dir == "" {
		dir = DataDir()
	}
	r := &Reader{dir: dir}
	return r, r.Reload()
}

func (r *Reader) FilePath() string {
	return filepath.Join(r.dir, ASNFileName)
}

func (r *Reader) EnsureDir() error {
	return os.MkdirAll(r.dir, 0o755)
}

// Reload swaps in the database currently on disk.
func (r *Reader) Reload() error {
	data, err := os.ReadFile(r.FilePath())
	if err != nil {
		return fmt.Errorf("geolite: read %s: %w", ASNFileName, err)
	}
	db, err := geoip2.FromBytes(data)
	if err != nil {
		return fmt.Errorf("geolite: open %s: %w", ASNFileName, err)
	}

	r.mu.Lock()
	old := r.db
	r.db = db
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (r *Reader) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db != nil
}

// LookupASN returns the autonomous system number announcing addr, or 0 when unknown.
func (r *Reader) LookupASN(addr netip.Addr) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.db == nil {
		return 0, ErrUnavailable
	}
	record, err := r.db.ASN(net.IP(addr.Unmap().AsSlice()))
	if err != nil {
		return 0, err
	}
	return uint32(record.AutonomousSystemNumber), nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
