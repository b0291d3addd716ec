package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Config struct {
	Importers struct {
		Google    ImporterSource  `json:"google"`
		Amazon    ImporterSource  `json:"amazon"`
		Equinix   ImporterSource  `json:"equinix"`
		Microsoft MicrosoftSource `json:"microsoft"`

		RefreshTimer   Timer  `json:"refresh_timer"`
		MaxPayloadSize int64  `json:"max_payload_size"`
		FetchRetries   uint32 `json:"fetch_retries"`
	} `json:"importers"`

	Greencheck struct {
		Nameservers       []string `json:"nameservers"`
		DNSTimeout        uint32   `json:"dns_timeout"`
		MemoryCacheSize   int      `json:"memory_cache_size"`
		MemoryCacheTTL    Timer    `json:"memory_cache_ttl"`
		GreenDomainMaxAge Timer    `json:"green_domain_max_age"`
		MaxBatchSize      int      `json:"max_batch_size"`
		BatchConcurrency  int      `json:"batch_concurrency"`
	} `json:"greencheck"`

	RateLimit struct {
		Enabled           bool    `json:"enabled"`
		RequestsPerSecond float64 `json:"requests_per_second"`
		Burst             int     `json:"burst"`
	} `json:"rate_limit"`

	GeoLite struct {
		APIKey        string `json:"api_key"`
		AutoUpdate    bool   `json:"auto_update"`
		UpdateTimer   Timer  `json:"update_timer"`
		LastUpdatedAt string `json:"last_updated_at,omitempty"`
	} `json:"geolite"`

	Export struct {
		Enabled  bool   `json:"enabled"`
		Bucket   string `json:"bucket"`
		Prefix   string `json:"prefix"`
		Endpoint string `json:"endpoint"`
		Region   string `json:"region"`
		WorkDir  string `json:"work_dir"`
		Timer    Timer  `json:"timer"`
	} `json:"export"`

	Cluster struct {
		KeyPrefix      string `json:"key_prefix"`
		HeartbeatTimer Timer  `json:"heartbeat_timer"`
	} `json:"cluster"`
}

// ImporterSource describes one bulk IP-range dataset and the provider it belongs to.
type ImporterSource struct {
	Enabled    bool   `json:"enabled"`
	ProviderID uint64 `json:"provider_id"`
	Endpoint   string `json:"endpoint"`
}

// MicrosoftSource publishes its dataset under a dated URL: URLPrefix + YYYYMMDD + URLExtension.
type MicrosoftSource struct {
	ImporterSource
	URLPrefix    string `json:"url_prefix"`
	URLExtension string `json:"url_extension"`
	SearchDays   int    `json:"search_days"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

// IsZero reports whether no unit of the timer is set.
func (t Timer) IsZero() bool {
	return t.Days == 0 && t.Hours == 0 && t.Minutes == 0 && t.Seconds == 0
}

const defaultSettingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	settingsFilePath = defaultSettingsFilePath

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	cfg, err := DefaultConfig()
	if err != nil {
		cfg = Config{}
	}
	configValue.Store(cfg)
}

// DefaultConfig decodes the embedded default settings.
func DefaultConfig() (Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration", "path", settingsFilePath)

			if err := os.MkdirAll(filepath.Dir(settingsFilePath), os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file", "error", err)
				return
			}

			if err := os.WriteFile(settingsFilePath, defaultConfig, 0o644); err != nil {
				log.Error("Error writing default settings file", "error", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file", "error", err)
			return
		}
	}

	newConfig, err := DefaultConfig()
	if err != nil {
		log.Error("Error decoding embedded default settings", "error", err)
	}
	if err := json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file", "error", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file", "error", err)
		return
	}

	log.Debug("Settings file loaded successfully")
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update", "error", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

func UpdateGeoLiteConfig(updater func(cfg *Config)) error {
	if updater == nil {
		return errors.New("config: geolite updater cannot be nil")
	}

	cfg := GetConfig()
	updater(&cfg)

	return applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, broadcast: true, source: "geolite"})
}

func MarkGeoLiteUpdated(ts time.Time) error {
	return UpdateGeoLiteConfig(func(cfg *Config) {
		cfg.GeoLite.LastUpdatedAt = ts.UTC().Format(time.RFC3339)
	})
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	SetBetweenTime()

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath, data, 0o644); err != nil {
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		payload, err := json.Marshal(newConfig)
		if err != nil {
			errs = append(errs, err)
		} else if err := broadcastConfigUpdate(payload); err != nil {
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	} else {
		log.Debug("Configuration applied")
	}

	return errors.Join(errs...)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}
