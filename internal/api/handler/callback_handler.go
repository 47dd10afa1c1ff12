package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"competenest/internal/app/service"
	"competenest/internal/common"
)

// CallbackHandler receives per-testcase results from the external judge. The
// judge retries on 429 (a concurrent callback holds the testcase) and treats
// 409 as a duplicate it can drop.
type CallbackHandler struct {
	aggregationService *service.AggregationService
}

func NewCallbackHandler(as *service.AggregationService) *CallbackHandler {
	return &CallbackHandler{aggregationService: as}
}

func (h *CallbackHandler) RegisterRoutes(r chi.Router) {
	r.Put("/{submissionID}/testcase/{submittedTestcaseID}", h.handleTestcaseResult)
	r.Put("/{submissionID}/contest/{contestID}/testcase/{submittedTestcaseID}", h.handleContestTestcaseResult)
	r.Post("/run/{problemID}", h.handleRunResult)
}

func (h *CallbackHandler) handleTestcaseResult(w http.ResponseWriter, r *http.Request) {
	h.processTestcaseResult(w, r, "")
}

func (h *CallbackHandler) handleContestTestcaseResult(w http.ResponseWriter, r *http.Request) {
	h.processTestcaseResult(w, r, chi.URLParam(r, "contestID"))
}

func (h *CallbackHandler) processTestcaseResult(w http.ResponseWriter, r *http.Request, contestID string) {
	submissionID := chi.URLParam(r, "submissionID")
	submittedTestcaseID := chi.URLParam(r, "submittedTestcaseID")

	var res service.TestcaseResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid callback payload")
		return
	}
	defer r.Body.Close()

	sub, err := h.aggregationService.HandleTestcaseResult(r.Context(), submissionID, submittedTestcaseID, contestID, res)
	if err != nil {
		status := common.HTTPStatusFromError(err)
		if status >= http.StatusInternalServerError {
			common.RespondWithError(w, status, "Internal server error. Submission marked as Internal Error.")
		} else {
			common.RespondWithError(w, status, err.Error())
		}
		return
	}

	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"message":           "Testcase result recorded",
		"updatedSubmission": sub,
	})
}

type runCallbackPayload struct {
	UID string `json:"uid"`
	service.TestcaseResult
}

func (h *CallbackHandler) handleRunResult(w http.ResponseWriter, r *http.Request) {
	var payload runCallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("ERROR: Run callback for problem %s: invalid payload: %v", chi.URLParam(r, "problemID"), err)
		common.RespondWithError(w, http.StatusBadRequest, "Invalid callback payload")
		return
	}
	defer r.Body.Close()

	if payload.UID == "" {
		common.RespondWithError(w, http.StatusBadRequest, "uid is required")
		return
	}

	h.aggregationService.HandleRunCallback(payload.UID, payload.TestcaseResult)
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Run result relayed",
	})
}
