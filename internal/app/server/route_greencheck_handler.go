package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"greenweb/internal/api/dto"
	"greenweb/internal/database"
	"greenweb/internal/domain"
	"greenweb/internal/greencheck"
)

const maxMultiBodyBytes = 1 << 20

func (s *Server) getGreencheck(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("url")
	result, err := s.checker.Check(r.Context(), raw)
	switch {
	case errors.Is(err, greencheck.ErrInvalidDomain):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Error("greencheck failed", "url", raw, "error", err)
		writeError(w, "greencheck failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewGreencheckResult(result))
}

func (s *Server) postGreencheckMulti(w http.ResponseWriter, r *http.Request) {
	var urls []string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMultiBodyBytes)).Decode(&urls); err != nil {
		writeError(w, "expected a JSON array of urls", http.StatusBadRequest)
		return
	}
	s.writeMulti(w, r, urls)
}

// getLegacyGreencheckMulti takes the url list as a JSON array in the path.
// Anything that does not decode is treated as an empty list.
func (s *Server) getLegacyGreencheckMulti(w http.ResponseWriter, r *http.Request) {
	var urls []string
	if err := json.Unmarshal([]byte(r.PathValue("urlList")), &urls); err != nil {
		urls = nil
	}
	s.writeMulti(w, r, urls)
}

func (s *Server) writeMulti(w http.ResponseWriter, r *http.Request, urls []string) {
	if len(urls) == 0 {
		writeJSON(w, http.StatusOK, dto.GreencheckMulti{})
		return
	}

	results, err := s.checker.CheckBatch(r.Context(), urls)
	switch {
	case errors.Is(err, greencheck.ErrBatchTooLarge):
		writeError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		log.Error("greencheck batch failed", "urls", len(urls), "error", err)
		writeError(w, "greencheck failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewGreencheckMulti(urls, results))
}

func getLatestGreenchecks(w http.ResponseWriter, r *http.Request) {
	checks, err := database.LatestGreenchecks(r.Context(), database.DefaultLatestChecks)
	if err != nil {
		log.Error("latest greenchecks", "error", err)
		writeError(w, "could not load latest checks", http.StatusInternalServerError)
		return
	}

	ids := make([]uint64, 0, len(checks))
	for _, check := range checks {
		if check.Green && check.ProviderID != 0 {
			ids = append(ids, check.ProviderID)
		}
	}
	providers, err := database.GetProvidersByIDs(r.Context(), ids)
	if err != nil {
		log.Error("latest greenchecks providers", "error", err)
		writeError(w, "could not load latest checks", http.StatusInternalServerError)
		return
	}

	payload := make([]dto.LatestCheck, 0, len(checks))
	for _, check := range checks {
		var provider *domain.Provider
		if p, ok := providers[check.ProviderID]; ok {
			provider = &p
		}
		payload = append(payload, dto.NewLatestCheck(check, provider))
	}
	writeJSON(w, http.StatusOK, payload)
}

func trimmedPathValue(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}
