package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup tiers reported by GreencheckLookups.
const (
	TierMemory = "memory"
	TierTable  = "table"
	TierFull   = "full"
)

var GreencheckLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "greenweb_greencheck_lookups_total",
		Help: "Greencheck lookups by the tier that answered them.",
	},
	[]string{"tier"},
)

var GreencheckVerdicts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "greenweb_greencheck_verdicts_total",
		Help: "Greencheck results by verdict and match type.",
	},
	[]string{"verdict", "match_type"},
)

var ImporterRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "greenweb_importer_runs_total",
		Help: "Bulk importer runs by importer and outcome.",
	},
	[]string{"importer", "outcome"},
)

var ImporterNetworks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "greenweb_importer_networks_total",
		Help: "Networks written by bulk importers.",
	},
	[]string{"importer", "action"},
)

var ExportRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "greenweb_export_runs_total",
		Help: "Green domain snapshot exports by outcome.",
	},
	[]string{"outcome"},
)

var registerOnce sync.Once

// Register adds the collectors to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(GreencheckLookups, GreencheckVerdicts, ImporterRuns, ImporterNetworks, ExportRuns)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// Verdict maps a green flag to its label value.
func Verdict(green bool) string {
	if green {
		return "green"
	}
	return "grey"
}
