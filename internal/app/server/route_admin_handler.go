package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"greenweb/internal/api/dto"
	"greenweb/internal/config"
	"greenweb/internal/database"
	"greenweb/internal/domain"
	"greenweb/internal/importer"
	"greenweb/internal/jobs/runtime"
)

const maxCSVUploadBytes = 16 << 20

func (s *Server) postImporterRun(w http.ResponseWriter, r *http.Request) {
	src, err := importer.SourceByName(config.GetConfig(), r.PathValue("name"))
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	result, err := importer.Run(r.Context(), src)
	if err != nil {
		writeImportError(w, src.Name(), err)
		return
	}
	s.checker.Reset()
	writeJSON(w, http.StatusOK, dto.NewImportResult(result))
}

// postCSVImport accepts the CSV as the raw body or as a multipart "file" field.
// With ?preview=true nothing is written.
func (s *Server) postCSVImport(w http.ResponseWriter, r *http.Request) {
	providerID, err := strconv.ParseUint(trimmedPathValue(r, "providerID"), 10, 64)
	if err != nil {
		writeError(w, "invalid provider id", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCSVUploadBytes)
	var source io.Reader = r.Body
	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		source = file
	}

	csvImporter, err := importer.NewCSV(providerID, source)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if preview, _ := strconv.ParseBool(r.URL.Query().Get("preview")); preview {
		entries, err := csvImporter.Preview(r.Context())
		if err != nil {
			writeImportError(w, csvImporter.Name(), err)
			return
		}
		writeJSON(w, http.StatusOK, dto.NewCSVPreview(providerID, entries))
		return
	}

	result, err := importer.Run(r.Context(), csvImporter)
	if err != nil {
		writeImportError(w, csvImporter.Name(), err)
		return
	}
	s.checker.Reset()
	writeJSON(w, http.StatusOK, dto.NewImportResult(result))
}

func writeImportError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, importer.ErrMissingProvider):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, importer.ErrEmptyDataset):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.Error("import failed", "importer", name, "error", err)
		writeError(w, err.Error(), http.StatusBadGateway)
	}
}

func postProviderRequest(w http.ResponseWriter, r *http.Request) {
	var submission dto.ProviderRequestSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	request := submission.ToDomain()
	if err := database.CreateProviderRequest(r.Context(), request); err != nil {
		writeProviderRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewProviderRequestInfo(request))
}

func (s *Server) postApproveProviderRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(trimmedPathValue(r, "id"), 10, 64)
	if err != nil {
		writeError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	provider, err := database.ApproveProviderRequest(r.Context(), id)
	if err != nil {
		writeProviderRequestError(w, err)
		return
	}

	// New ranges may turn cached grey answers green.
	s.checker.Reset()
	log.Info("Provider request approved", "request", id, "provider", provider.ID)
	writeJSON(w, http.StatusOK, dto.NewApprovedProvider(id, provider))
}

func postProviderRequestStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(trimmedPathValue(r, "id"), 10, 64)
	if err != nil {
		writeError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	var change dto.StatusChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := database.SetProviderRequestStatus(r.Context(), id, domain.ProviderRequestStatus(change.Status)); err != nil {
		writeProviderRequestError(w, err)
		return
	}

	request, err := database.GetProviderRequest(r.Context(), id)
	if err != nil {
		writeProviderRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewProviderRequestInfo(request))
}

func writeProviderRequestError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, database.ErrRequestNotFound), errors.Is(err, database.ErrUserNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, database.ErrRequestAlreadyAccepted),
		errors.Is(err, database.ErrUserAlreadyLinked),
		errors.Is(err, database.ErrASNExists):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		log.Error("provider request", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func postExport(w http.ResponseWriter, r *http.Request) {
	summary, err := runtime.RunGreenDomainExport(r.Context(), true)
	if err != nil {
		log.Error("green domain export", "error", err)
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
