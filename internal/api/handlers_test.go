package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/mudmantim/switchline-backend-sub000/internal/auth"
	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
	"github.com/mudmantim/switchline-backend-sub000/internal/domain"
	"github.com/mudmantim/switchline-backend-sub000/internal/persistence/memory"
)

var testNow = time.Date(2025, time.March, 10, 22, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (http.Handler, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	service := domain.NewService(repo,
		domain.WithClock(domain.ClockFunc(func() time.Time { return testNow })),
		domain.WithLocation(time.UTC),
		domain.WithSampler(rand.New(rand.NewPCG(1, 2))),
	)
	router := mux.NewRouter()
	NewHandler(service).RegisterRoutes(router)
	return router, repo
}

func withUser(req *http.Request, userID string, scopes ...string) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), auth.NewClaims(userID, scopes...)))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return payload["type"]
}

func TestDailyWorkoutAndCompletion(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := serve(router, withUser(httptest.NewRequest(http.MethodGet, "/v1/workouts/daily", nil), "user-1", auth.ScopeEngagementRead))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var workout WorkoutView
	if err := json.Unmarshal(rr.Body.Bytes(), &workout); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if workout.Date != "2025-03-10" {
		t.Fatalf("unexpected date %s", workout.Date)
	}
	if workout.FitnessLevel != string(catalog.TierBeginner) {
		t.Fatalf("expected beginner got %s", workout.FitnessLevel)
	}
	if len(workout.Exercises) < 4 || len(workout.Exercises) > 5 {
		t.Fatalf("unexpected exercise count %d", len(workout.Exercises))
	}
	if workout.Progress.Total != len(workout.Exercises) || workout.Progress.Completed != 0 {
		t.Fatalf("unexpected progress %+v", workout.Progress)
	}

	first := workout.Exercises[0]
	req := httptest.NewRequest(http.MethodPost, "/v1/workouts/complete", jsonBody(t, CompleteExerciseRequest{ExerciseID: first.ID}))
	rr = serve(router, withUser(req, "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var result ExerciseResultView
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Rewards.Gold != first.Gold || result.Rewards.XP != first.XP {
		t.Fatalf("unexpected rewards %+v for %+v", result.Rewards, first.Exercise)
	}
	if result.WorkoutComplete {
		t.Fatalf("workout should not be complete after one exercise")
	}
	if result.Progress.Completed != 1 {
		t.Fatalf("expected progress 1 got %d", result.Progress.Completed)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/workouts/complete", jsonBody(t, CompleteExerciseRequest{ExerciseID: first.ID}))
	rr = serve(router, withUser(req, "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rr.Code)
	}
	if got := errorType(t, rr); got != "conflict" {
		t.Fatalf("expected conflict got %s", got)
	}
}

func TestCompleteExerciseErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{name: "malformed", body: "{", status: http.StatusBadRequest, kind: "invalid_request"},
		{name: "missing id", body: `{}`, status: http.StatusBadRequest, kind: "validation_failed"},
		{name: "unknown id", body: `{"exercise_id":"no-such-move"}`, status: http.StatusNotFound, kind: "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/workouts/complete", bytes.NewBufferString(tc.body))
			rr := serve(router, withUser(req, "user-1", auth.ScopeEngagementWrite))
			if rr.Code != tc.status {
				t.Fatalf("expected %d got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if got := errorType(t, rr); got != tc.kind {
				t.Fatalf("expected %s got %s", tc.kind, got)
			}
		})
	}
}

func TestScopesAreEnforced(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/popups/generate", nil)
	rr = serve(router, withUser(req, "user-1", auth.ScopeEngagementRead))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}

	rr = serve(router, withUser(httptest.NewRequest(http.MethodGet, "/v1/stats", nil), "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("write scope should grant reads, got %d", rr.Code)
	}
}

func TestFitnessLevelRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/profile/fitness-level", jsonBody(t, FitnessLevelView{FitnessLevel: "Advanced"}))
	rr := serve(router, withUser(req, "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(router, withUser(httptest.NewRequest(http.MethodGet, "/v1/profile/fitness-level", nil), "user-1", auth.ScopeEngagementRead))
	var view FitnessLevelView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.FitnessLevel != "advanced" {
		t.Fatalf("expected advanced got %s", view.FitnessLevel)
	}

	req = httptest.NewRequest(http.MethodPut, "/v1/profile/fitness-level", jsonBody(t, FitnessLevelView{FitnessLevel: "elite"}))
	rr = serve(router, withUser(req, "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestPopupLifecycle(t *testing.T) {
	router, repo := newTestRouter(t)

	rr := serve(router, withUser(httptest.NewRequest(http.MethodPost, "/v1/popups/generate", nil), "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var scheduled ScheduleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &scheduled); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if scheduled.Created != domain.PopupsPerDay || len(scheduled.Popups) != domain.PopupsPerDay {
		t.Fatalf("unexpected schedule %+v", scheduled)
	}
	for _, p := range scheduled.Popups {
		var challenge map[string]json.RawMessage
		if err := json.Unmarshal(p.Challenge, &challenge); err != nil {
			t.Fatalf("failed to decode challenge: %v", err)
		}
		switch domain.PopupKind(p.Kind) {
		case domain.PopupKindExercise:
			if _, ok := challenge["exercise_id"]; !ok {
				t.Fatalf("exercise challenge without exercise_id: %s", p.Challenge)
			}
		case domain.PopupKindTrivia:
			if _, ok := challenge["question_id"]; !ok {
				t.Fatalf("trivia challenge without question_id: %s", p.Challenge)
			}
			if _, ok := challenge["correct_option"]; ok {
				t.Fatalf("trivia challenge leaks the answer: %s", p.Challenge)
			}
		default:
			t.Fatalf("unexpected kind %q", p.Kind)
		}
	}

	rr = serve(router, withUser(httptest.NewRequest(http.MethodPost, "/v1/popups/generate", nil), "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat got %d", rr.Code)
	}

	rr = serve(router, withUser(httptest.NewRequest(http.MethodGet, "/v1/popups/active", nil), "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var active ActivePopupResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &active); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if active.Popup == nil {
		t.Fatalf("expected an active popup")
	}
	if active.Popup.ID != scheduled.Popups[0].ID || active.Popup.State != string(domain.PopupStateOpened) {
		t.Fatalf("unexpected active popup %+v", active.Popup)
	}

	stored, err := repo.GetPopup(context.Background(), active.Popup.ID)
	if err != nil || stored == nil {
		t.Fatalf("lookup popup: %v", err)
	}
	body := CompletePopupRequest{}
	if snap, ok := stored.Challenge.(domain.TriviaSnapshot); ok {
		q, _ := catalog.LookupQuestion(snap.QuestionID)
		body.Answer = &q.CorrectOption
	}

	path := "/v1/popups/" + active.Popup.ID + "/complete"
	rr = serve(router, withUser(httptest.NewRequest(http.MethodPost, path, jsonBody(t, body)), "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var result PopupResultView
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !result.Correct || result.TotalGems != result.GemsEarned+result.SpeedBonus {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Popup.State != string(domain.PopupStateCompleted) {
		t.Fatalf("expected completed state got %s", result.Popup.State)
	}

	rr = serve(router, withUser(httptest.NewRequest(http.MethodPost, path, jsonBody(t, body)), "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rr.Code)
	}

	rr = serve(router, withUser(httptest.NewRequest(http.MethodPost, path, jsonBody(t, body)), "user-2", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's popup got %d", rr.Code)
	}
}

func TestPopupHistoryPaging(t *testing.T) {
	router, _ := newTestRouter(t)

	serve(router, withUser(httptest.NewRequest(http.MethodPost, "/v1/popups/generate", nil), "user-1", auth.ScopeEngagementWrite))

	rr := serve(router, withUser(httptest.NewRequest(http.MethodGet, "/v1/popups/history?limit=2", nil), "user-1", auth.ScopeEngagementRead))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var page PopupHistoryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected first page %+v", page)
	}
	if page.Items[0].ScheduledAt.Before(page.Items[1].ScheduledAt) {
		t.Fatalf("history must be newest first")
	}

	rr = serve(router, withUser(httptest.NewRequest(http.MethodGet, "/v1/popups/history?limit=2&cursor="+page.NextCursor, nil), "user-1", auth.ScopeEngagementRead))
	var rest PopupHistoryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &rest); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(rest.Items) != 1 || rest.NextCursor != "" {
		t.Fatalf("unexpected second page %+v", rest)
	}

	rr = serve(router, withUser(httptest.NewRequest(http.MethodGet, "/v1/popups/history?cursor=%25%25", nil), "user-1", auth.ScopeEngagementRead))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor got %d", rr.Code)
	}
}

func TestTriviaRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := serve(router, withUser(httptest.NewRequest(http.MethodGet, "/v1/trivia/random?difficulty=easy", nil), "user-1", auth.ScopeEngagementRead))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("explanation")) {
		t.Fatalf("random question must not leak the answer: %s", rr.Body.String())
	}
	var pick RandomQuestionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &pick); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	q, ok := catalog.LookupQuestion(pick.Question.ID)
	if !ok {
		t.Fatalf("unknown question %s", pick.Question.ID)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/trivia/answer", jsonBody(t, map[string]any{"question_id": q.ID, "answer": q.CorrectOption}))
	rr = serve(router, withUser(req, "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var answer AnswerView
	if err := json.Unmarshal(rr.Body.Bytes(), &answer); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !answer.Correct || answer.GemsEarned != q.Gems {
		t.Fatalf("unexpected answer %+v", answer)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/trivia/answer", jsonBody(t, map[string]any{"question_id": q.ID}))
	rr = serve(router, withUser(req, "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without answer got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/trivia/answer", jsonBody(t, map[string]any{"question_id": q.ID, "answer": len(q.Options)}))
	rr = serve(router, withUser(req, "user-1", auth.ScopeEngagementWrite))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range option got %d", rr.Code)
	}
}

func TestRoutesBehindAuthMiddleware(t *testing.T) {
	router, _ := newTestRouter(t)
	cfg := auth.Config{Secret: "test-secret", Issuer: "test-issuer"}
	handler := auth.NewMiddleware(cfg).Wrap(router)

	rr := serve(handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz should be open, got %d", rr.Code)
	}

	rr = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	token, err := auth.IssueToken(cfg, "user-9", time.Hour, auth.ScopeEngagementRead)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = serve(handler, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var stats StatsView
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.CurrentStreak != 0 || stats.TotalGems != 0 {
		t.Fatalf("new user should start at zero: %+v", stats)
	}
}
