// Package api exposes HTTP handlers for the engagement service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mudmantim/switchline-backend-sub000/internal/auth"
	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
	"github.com/mudmantim/switchline-backend-sub000/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/workouts/daily", h.dailyWorkout).Methods(http.MethodGet)
	v1.HandleFunc("/workouts/complete", h.completeExercise).Methods(http.MethodPost)
	v1.HandleFunc("/profile/fitness-level", h.fitnessLevel).Methods(http.MethodGet)
	v1.HandleFunc("/profile/fitness-level", h.updateFitnessLevel).Methods(http.MethodPut)
	v1.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	v1.HandleFunc("/popups/generate", h.generatePopups).Methods(http.MethodPost)
	v1.HandleFunc("/popups/active", h.activePopup).Methods(http.MethodGet)
	v1.HandleFunc("/popups/history", h.popupHistory).Methods(http.MethodGet)
	v1.HandleFunc("/popups/{id}/complete", h.completePopup).Methods(http.MethodPost)
	v1.HandleFunc("/trivia/random", h.randomQuestion).Methods(http.MethodGet)
	v1.HandleFunc("/trivia/answer", h.submitAnswer).Methods(http.MethodPost)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize resolves the calling user and checks scope.
func authorize(w http.ResponseWriter, r *http.Request, scope string) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return "", false
	}
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "token has no subject")
		return "", false
	}
	return userID, true
}

func (h *Handler) dailyWorkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementRead)
	if !ok {
		return
	}
	workout, err := h.service.DailyWorkout(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkoutView(workout))
}

func (h *Handler) completeExercise(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}
	var req CompleteExerciseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.service.CompleteExercise(r.Context(), userID, req.ExerciseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExerciseResultView(result))
}

func (h *Handler) fitnessLevel(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementRead)
	if !ok {
		return
	}
	tier, err := h.service.FitnessLevel(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FitnessLevelView{FitnessLevel: string(tier)})
}

func (h *Handler) updateFitnessLevel(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}
	var req FitnessLevelView
	if !decodeBody(w, r, &req) {
		return
	}
	tier, err := h.service.UpdateFitnessLevel(r.Context(), userID, req.FitnessLevel)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FitnessLevelView{FitnessLevel: string(tier)})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementRead)
	if !ok {
		return
	}
	ledger, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsView(ledger))
}

func (h *Handler) generatePopups(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}
	result, err := h.service.ScheduleToday(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := ScheduleResponse{
		AlreadyScheduled: result.AlreadyScheduled,
		Created:          result.Created,
		Popups:           toPopupViews(result.Popups),
	}
	status := http.StatusCreated
	if result.AlreadyScheduled {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) activePopup(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}
	popup, err := h.service.ActivePopup(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := ActivePopupResponse{}
	if popup != nil {
		view := toPopupView(*popup)
		resp.Popup = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) completePopup(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}
	popupID := mux.Vars(r)["id"]

	var req CompletePopupRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	result, err := h.service.CompletePopup(r.Context(), userID, popupID, req.Answer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPopupResultView(result))
}

func (h *Handler) popupHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementRead)
	if !ok {
		return
	}

	limit := domain.MaxHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cursor, err := domain.ParseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	popups, next, err := h.service.PopupHistory(r.Context(), userID, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PopupHistoryResponse{
		Items:      toPopupViews(popups),
		NextCursor: next.Token(),
	})
}

func (h *Handler) randomQuestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementRead)
	if !ok {
		return
	}
	q := r.URL.Query()
	pick, err := h.service.RandomQuestion(r.Context(), userID, catalog.TriviaFilter{
		Difficulty: strings.TrimSpace(q.Get("difficulty")),
		Category:   strings.TrimSpace(q.Get("category")),
		AgeGroup:   strings.TrimSpace(q.Get("age_group")),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RandomQuestionResponse{Question: pick.Question, AllAnswered: pick.AllAnswered})
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}
	var req SubmitAnswerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Answer == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "answer is required")
		return
	}
	result, err := h.service.SubmitAnswer(r.Context(), userID, req.QuestionID, *req.Answer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AnswerView{
		Correct:       result.Correct,
		CorrectAnswer: result.CorrectAnswer,
		Explanation:   result.Explanation,
		GemsEarned:    result.GemsEarned,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body, leaving dst untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case domain.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		log.Printf("api: request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
