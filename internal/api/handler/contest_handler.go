package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"

	apimiddleware "competenest/internal/api/middleware"
	"competenest/internal/app/service"
	"competenest/internal/common"
	"competenest/internal/common/security"
)

type ContestHandler struct {
	contestService     *service.ContestService
	leaderboardService *service.LeaderboardService
}

func NewContestHandler(cs *service.ContestService, ls *service.LeaderboardService) *ContestHandler {
	return &ContestHandler{contestService: cs, leaderboardService: ls}
}

func (h *ContestHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{contestID}", h.handleGet)
	r.Get("/{contestID}/leaderboard", h.handleLeaderboard)

	r.Group(func(auth chi.Router) {
		auth.Use(apimiddleware.Authenticator)
		auth.Post("/{contestID}/register", h.handleRegister)

		auth.Group(func(manage chi.Router) {
			manage.Use(apimiddleware.OrganiserOrAdmin)
			manage.Post("/", h.handleCreate)
			manage.Delete("/{contestID}", h.handleDelete)
		})
	})
}

func (h *ContestHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input service.CreateContestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	userID, _ := apimiddleware.GetUserIDFromContext(r.Context())
	input.CreatedByID = userID

	contest, err := h.contestService.CreateContest(r.Context(), input)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, contest)
}

func (h *ContestHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "contestID")
	if err := h.contestService.DeleteContest(r.Context(), contestID); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Contest deleted",
	})
}

func (h *ContestHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "contestID")
	userID, ok := apimiddleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	// ?register=false withdraws the enrollment instead.
	if r.URL.Query().Get("register") == "false" {
		if err := h.contestService.Unregister(r.Context(), contestID, userID); err != nil {
			common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
			return
		}
		common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Unregistered from contest",
		})
		return
	}

	if err := h.contestService.Register(r.Context(), contestID, userID); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Registered for contest",
	})
}

func (h *ContestHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	// Public route: registration status is included only when the caller
	// happened to present a valid token to the Verifier.
	userID := ""
	if _, claims, err := jwtauth.FromContext(r.Context()); err == nil {
		if id, claimErr := security.GetUserIDFromClaims(claims); claimErr == nil {
			userID = id
		}
	}
	contest, registered, err := h.contestService.GetContestDetail(r.Context(), chi.URLParam(r, "contestID"), userID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"contest":     contest,
		"registered":  registered,
		"server_time": time.Now().UTC(),
	})
}

func (h *ContestHandler) handleList(w http.ResponseWriter, r *http.Request) {
	contests, err := h.contestService.ListContests(r.Context())
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, contests)
}

func (h *ContestHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.leaderboardService.GetLeaderboard(r.Context(), chi.URLParam(r, "contestID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, snapshot)
}
