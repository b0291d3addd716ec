package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pariz/gountries"

	"greenweb/internal/api/dto"
	"greenweb/internal/database"
)

var (
	countriesOnce sync.Once
	countries     map[string]gountries.Country
)

func allCountries() map[string]gountries.Country {
	countriesOnce.Do(func() {
		countries = gountries.New().FindAllCountries()
	})
	return countries
}

// getDirectory lists every country keyed by ISO code, with its visible
// providers when it has any.
func getDirectory(w http.ResponseWriter, r *http.Request) {
	providers, err := database.ListDirectoryProviders(r.Context())
	if err != nil {
		log.Error("directory providers", "error", err)
		writeError(w, "could not load directory", http.StatusInternalServerError)
		return
	}

	byCountry := make(map[string][]dto.DirectoryProvider)
	for _, p := range providers {
		iso := strings.ToUpper(p.Country)
		byCountry[iso] = append(byCountry[iso], dto.NewDirectoryProvider(p))
	}

	directory := make(map[string]dto.DirectoryCountry, len(allCountries()))
	for _, country := range allCountries() {
		iso := strings.ToUpper(country.Alpha2)
		if iso == "" {
			continue
		}
		directory[iso] = dto.DirectoryCountry{
			ISO:         iso,
			TLD:         "." + strings.ToLower(iso),
			CountryName: strings.ToUpper(country.Name.Common),
			Providers:   byCountry[iso],
		}
	}

	writeJSON(w, http.StatusOK, directory)
}

// getProviderDetail answers with a one element list, the legacy shape.
func getProviderDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(trimmedPathValue(r, "id"), 10, 64)
	if err != nil {
		writeError(w, "invalid provider id", http.StatusBadRequest)
		return
	}

	provider, err := database.GetProviderDetail(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrProviderNotFound):
		writeError(w, "provider not found", http.StatusNotFound)
		return
	case err != nil:
		log.Error("provider detail", "id", id, "error", err)
		writeError(w, "could not load provider", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, []dto.ProviderDetail{dto.NewProviderDetail(*provider)})
}
