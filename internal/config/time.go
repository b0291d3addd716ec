package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultImportRefreshInterval = 24 * time.Hour
	defaultExportInterval        = 24 * time.Hour
	defaultGeoLiteUpdateInterval = 7 * 24 * time.Hour
	defaultMemoryCacheTTL        = 10 * time.Minute
	defaultGreenDomainMaxAge     = 30 * 24 * time.Hour
	defaultHeartbeatInterval     = 15 * time.Second
	defaultInstanceKeyPrefix     = "greenweb:instance:"
)

// intervalSetting holds one scheduling interval and the channels waiting for changes to it.
type intervalSetting struct {
	value     atomic.Value
	fallback  time.Duration
	mu        sync.Mutex
	listeners []chan time.Duration
}

func newIntervalSetting(fallback time.Duration) *intervalSetting {
	s := &intervalSetting{fallback: fallback}
	s.value.Store(fallback)
	return s
}

func (s *intervalSetting) get() time.Duration {
	return s.value.Load().(time.Duration)
}

func (s *intervalSetting) set(interval time.Duration) {
	if interval <= 0 {
		interval = s.fallback
	}
	if s.get() == interval {
		return
	}
	s.value.Store(interval)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func (s *intervalSetting) updates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()

	ch <- s.get()
	return ch
}

var (
	importRefreshInterval = newIntervalSetting(defaultImportRefreshInterval)
	exportInterval        = newIntervalSetting(defaultExportInterval)
	geoLiteUpdateInterval = newIntervalSetting(defaultGeoLiteUpdateInterval)
)

func SetBetweenTime() {
	cfg := GetConfig()
	importRefreshInterval.set(timerOrDefault(cfg.Importers.RefreshTimer, defaultImportRefreshInterval))
	exportInterval.set(timerOrDefault(cfg.Export.Timer, defaultExportInterval))
	geoLiteUpdateInterval.set(timerOrDefault(cfg.GeoLite.UpdateTimer, defaultGeoLiteUpdateInterval))
}

// CalculateBetweenTime converts a timer to a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfCheckingPeriod(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfCheckingPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func timerOrDefault(timer Timer, fallback time.Duration) time.Duration {
	if timer.IsZero() {
		return fallback
	}
	return CalculateBetweenTime(timer)
}

func GetImportRefreshInterval() time.Duration {
	return importRefreshInterval.get()
}

func ImportRefreshIntervalUpdates() <-chan time.Duration {
	return importRefreshInterval.updates()
}

func GetExportInterval() time.Duration {
	return exportInterval.get()
}

func ExportIntervalUpdates() <-chan time.Duration {
	return exportInterval.updates()
}

func GetGeoLiteUpdateInterval() time.Duration {
	return geoLiteUpdateInterval.get()
}

func GeoLiteUpdateIntervalUpdates() <-chan time.Duration {
	return geoLiteUpdateInterval.updates()
}

// GetMemoryCacheTTL is how long the in-process greencheck tier keeps a result.
func GetMemoryCacheTTL() time.Duration {
	return timerOrDefault(GetConfig().Greencheck.MemoryCacheTTL, defaultMemoryCacheTTL)
}

// GetGreenDomainMaxAge is the age after which a cached green domain row counts as a miss.
func GetGreenDomainMaxAge() time.Duration {
	return timerOrDefault(GetConfig().Greencheck.GreenDomainMaxAge, defaultGreenDomainMaxAge)
}

// GetHeartbeatInterval is how often an instance refreshes its presence key.
func GetHeartbeatInterval() time.Duration {
	return timerOrDefault(GetConfig().Cluster.HeartbeatTimer, defaultHeartbeatInterval)
}

// GetInstanceKeyPrefix is the Redis key prefix of instance presence keys.
func GetInstanceKeyPrefix() string {
	if prefix := GetConfig().Cluster.KeyPrefix; prefix != "" {
		return prefix
	}
	return defaultInstanceKeyPrefix
}
