package illness

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"symptom-tracker/internal/symptoms"
)

// editDateLayout is the layout the frontend uses for episode and
// symptom date edits.
const editDateLayout = "2006-01-02T15:04:05.000Z"

// SymptomParser runs free-form text through the external NLP endpoint.
type SymptomParser interface {
	Parse(ctx context.Context, text string) (json.RawMessage, error)
}

// ReportRenderer renders an episode to a downloadable document.
type ReportRenderer interface {
	Render(e *Episode) ([]byte, error)
}

type Handler struct {
	svc     Service
	parser  SymptomParser
	catalog *symptoms.Catalog
	reports ReportRenderer
}

func NewHandler(svc Service, parser SymptomParser, catalog *symptoms.Catalog, reports ReportRenderer) *Handler {
	return &Handler{
		svc:     svc,
		parser:  parser,
		catalog: catalog,
		reports: reports,
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/illness", func(r chi.Router) {
		r.Get("/", h.GetActive)
		r.Get("/history", h.History)
		r.Get("/report", h.Report)
		r.Put("/close", h.Close)
		r.Put("/reopen/{id}", h.Reopen)
		r.Get("/symptoms/list", h.SymptomsList)
		r.Post("/symptoms/refresh", h.RefreshSymptoms)
		r.Post("/symptoms/parse", h.ParseSymptoms)
		r.Post("/symptoms", h.AddSymptoms)
		r.Put("/symptoms/{id}", h.EditSymptomDate)
		r.Delete("/symptoms/{id}", h.RemoveSymptom)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Edit)
	})
}

func (h *Handler) GetActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	e, err := h.svc.GetActive(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		// No active episode is a normal state, not a failure.
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "success",
			"message": "Successfully retrieved active illness",
			"illness": map[string]any{},
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Successfully retrieved active illness",
		"illness": e.View(),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	episodeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid illness id")
		return
	}
	e, err := h.svc.Get(r.Context(), userID, episodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Successfully retrieved illness.",
		"illness": e.View(),
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	episodes, err := h.svc.History(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]EpisodeView, 0, len(episodes))
	for i := range episodes {
		views = append(views, episodes[i].View())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "Successfully retrieved user's illness history",
		"illnesses": views,
	})
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	closed, err := h.svc.Close(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	message := "No active illness found"
	if closed {
		message = "Successfully deactivated active illness"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	episodeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid illness id")
		return
	}
	if err := h.svc.Reopen(r.Context(), userID, episodeID); err != nil {
		if errors.Is(err, ErrConflict) {
			writeFailure(w, http.StatusConflict, "Requested illness is already the active illness")
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Successfully reopened illness",
	})
}

type editIllnessRequest struct {
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	episodeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid illness id")
		return
	}
	var req editIllnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request")
		return
	}

	var start, end *time.Time
	if req.StartDate != "" {
		t, err := time.Parse(editDateLayout, req.StartDate)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid start_date")
			return
		}
		start = &t
	}
	if req.EndDate != "" {
		t, err := time.Parse(editDateLayout, req.EndDate)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid end_date")
			return
		}
		end = &t
	}

	if err := h.svc.Edit(r.Context(), userID, episodeID, req.Title, start, end); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Successfully modified illness information.",
	})
}

type addSymptomsRequest struct {
	Symptoms []SymptomData `json:"symptoms"`
}

func (h *Handler) AddSymptoms(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req addSymptomsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request")
		return
	}

	result, err := h.svc.AddSymptoms(r.Context(), userID, req.Symptoms)
	if err != nil {
		writeError(w, err)
		return
	}

	message := "Added symptoms to active illness."
	if result.CreatedEpisode {
		message = "Active illness not found, created new active illness and added symptoms"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"message":          message,
		"illness":          result.Episode.View(),
		"diagnosis_status": diagnosisStatus(result),
	})
}

func (h *Handler) RemoveSymptom(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	symptomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid symptom id")
		return
	}

	result, err := h.svc.RemoveSymptom(r.Context(), userID, symptomID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeFailure(w, http.StatusNotFound, "Symptom ID not found")
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"message":          "Deleted Symptom",
		"illness":          result.Episode.View(),
		"diagnosis_status": diagnosisStatus(result),
	})
}

type editSymptomRequest struct {
	Date string `json:"date"`
}

func (h *Handler) EditSymptomDate(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	symptomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid symptom id")
		return
	}
	var req editSymptomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request")
		return
	}
	date, err := time.Parse(editDateLayout, req.Date)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid date")
		return
	}

	if err := h.svc.EditSymptomDate(r.Context(), userID, symptomID, date); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Edited Symptom",
	})
}

func (h *Handler) SymptomsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"message":  "Successfully retrieved symptoms list",
		"symptoms": h.catalog.List(),
	})
}

func (h *Handler) RefreshSymptoms(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Refresh(r.Context()); err != nil {
		writeFailure(w, http.StatusBadGateway, "Failed to refresh symptoms list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Successfully refreshed symptoms list",
	})
}

type parseRequest struct {
	Text string `json:"text"`
}

func (h *Handler) ParseSymptoms(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeFailure(w, http.StatusBadRequest, "Invalid request")
		return
	}
	parsed, err := h.parser.Parse(r.Context(), req.Text)
	if err != nil {
		writeFailure(w, http.StatusBadGateway, "Failed to process symptom text")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       "Successfully processed user symptom request",
		"symptoms_json": parsed,
	})
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	e, err := h.svc.GetActive(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	pdf, err := h.reports.Render(e)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "Failed to render report")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="illness_report.pdf"`)
	w.Write(pdf)
}

// callerID resolves the requesting user from the X-User-ID header. The
// authentication layer in front of this service is responsible for
// setting it.
func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, "Missing or invalid user identity")
		return uuid.Nil, false
	}
	return id, true
}

func diagnosisStatus(result *MutationResult) string {
	if result.DiagnosisErr != nil {
		return "unavailable"
	}
	return "updated"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status":  "failure",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Failed to retrieve illness with given id.")
	case errors.Is(err, ErrConflict):
		writeFailure(w, http.StatusConflict, "Request conflicts with the current illness state")
	case errors.Is(err, ErrValidation):
		writeFailure(w, http.StatusBadRequest, err.Error())
	default:
		writeFailure(w, http.StatusInternalServerError, "An error has occurred during this request.")
	}
}
