package server

import (
	"net/http"

	"github.com/charmbracelet/log"

	"greenweb/internal/app/version"
	"greenweb/internal/config"
	"greenweb/internal/database"
	"greenweb/internal/jobs/runtime"
	"greenweb/internal/support"
)

type statusResponse struct {
	Version   version.Info `json:"version"`
	Database  bool         `json:"database"`
	Instances int          `json:"instances"`
}

func getVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

// getStatus reports deployment health. Instances stays 0 when redis is unreachable.
func getStatus(w http.ResponseWriter, r *http.Request) {
	status := statusResponse{
		Version:  version.Get(),
		Database: database.Ping() == nil,
	}

	if client, err := support.GetRedisClient(); err == nil {
		count, err := runtime.CountInstances(r.Context(), client, config.GetInstanceKeyPrefix())
		if err != nil {
			log.Warn("count active instances", "error", err)
		} else {
			status.Instances = count
		}
	}

	writeJSON(w, http.StatusOK, status)
}
