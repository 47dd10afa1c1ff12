package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apimiddleware "competenest/internal/api/middleware"
	"competenest/internal/app/service"
	"competenest/internal/common"
)

type SubmissionHandler struct {
	submissionService *service.SubmissionService
}

func NewSubmissionHandler(ss *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: ss}
}

// RegisterRoutes mounts read access to submissions.
func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(auth chi.Router) {
		auth.Use(apimiddleware.Authenticator)
		auth.Get("/{submissionID}", h.handleGet)
	})
}

// RegisterProblemRoutes mounts the submit/run entry points under /problem.
func (h *SubmissionHandler) RegisterProblemRoutes(r chi.Router) {
	r.Group(func(auth chi.Router) {
		auth.Use(apimiddleware.Authenticator)
		auth.Post("/{problemID}/submit", h.handleSubmit)
		auth.Post("/{problemID}/run", h.handleRun)
	})
}

type submitRequest struct {
	Code      string `json:"code"`
	Language  int    `json:"language"`
	ContestID string `json:"contest_id,omitempty"`
}

func (h *SubmissionHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if req.Code == "" {
		common.RespondWithError(w, http.StatusBadRequest, "Code is required")
		return
	}

	userID, ok := apimiddleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	ticket, err := h.submissionService.CreateSubmission(r.Context(), service.CreateSubmissionInput{
		ProblemID: chi.URLParam(r, "problemID"),
		UserID:    userID,
		Code:      req.Code,
		Language:  req.Language,
		ContestID: req.ContestID,
	})
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, ticket)
}

func (h *SubmissionHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.submissionService.RunProblem(r.Context(), chi.URLParam(r, "problemID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, ticket)
}

func (h *SubmissionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	sub, err := h.submissionService.GetSubmission(r.Context(), chi.URLParam(r, "submissionID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}
