package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promptgrade-api/internal/config"
	"github.com/noah-isme/promptgrade-api/internal/dto"
	"github.com/noah-isme/promptgrade-api/internal/evaluation"
	"github.com/noah-isme/promptgrade-api/internal/handler"
	"github.com/noah-isme/promptgrade-api/internal/router"
	"github.com/noah-isme/promptgrade-api/internal/service"
	"github.com/noah-isme/promptgrade-api/internal/worker"
)

type stubSubmissionService struct {
	submit   func(dto.SubmitRequest) (dto.SubmitResponse, error)
	latest   func(string) (dto.ScoreRecordResponse, error)
	rescores int
}

func (s *stubSubmissionService) Submit(_ context.Context, payload dto.SubmitRequest) (dto.SubmitResponse, error) {
	return s.submit(payload)
}

func (s *stubSubmissionService) Finalize(context.Context, worker.Job) error { return nil }

func (s *stubSubmissionService) RescorePending(context.Context) (dto.RescoreSummary, error) {
	s.rescores++
	return dto.RescoreSummary{Processed: 2, Finalized: 2, Standings: []dto.LeaderboardEntry{{Rank: 1, Name: "alice", Score: 1}}}, nil
}

func (s *stubSubmissionService) Latest(_ context.Context, name string) (dto.ScoreRecordResponse, error) {
	return s.latest(name)
}

type stubLeaderboardService struct {
	lastLimit int
}

func (s *stubLeaderboardService) Quick(_ context.Context, limit int) ([]dto.LeaderboardEntry, error) {
	s.lastLimit = limit
	return []dto.LeaderboardEntry{
		{Rank: 1, Name: "alice", Score: 0.9, Timestamp: "2024-05-01T10:00:00.000000Z"},
		{Rank: 2, Name: "bob", Score: 0.5, Timestamp: "2024-05-01T10:00:01.000000Z"},
	}, nil
}

func (s *stubLeaderboardService) Final(context.Context, int) ([]dto.LeaderboardEntry, error) {
	return []dto.LeaderboardEntry{}, nil
}

func (s *stubLeaderboardService) TopThree(ctx context.Context) ([]dto.LeaderboardEntry, error) {
	return s.Quick(ctx, 3)
}

func (s *stubLeaderboardService) Invalidate(context.Context) {}

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Details map[string]string `json:"details"`
}

func newTestApp(submissions service.SubmissionService, leaderboards service.LeaderboardService, secret string) *fiber.App {
	app := fiber.New()
	router.Register(app, config.Config{AppName: "test", AdminJWTSecret: secret, SubmitRatePerMinute: 100}, router.Dependencies{
		SubmissionHandler:  handler.NewSubmissionHandler(submissions, zerolog.Nop()),
		LeaderboardHandler: handler.NewLeaderboardHandler(leaderboards, zerolog.Nop()),
		AdminHandler:       handler.NewAdminHandler(submissions, zerolog.Nop()),
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)
	schema, err := jsonschema.NewCompiler().Compile("file://" + filepath.ToSlash(path))
	require.NoError(t, err)
	return schema
}

func TestSubmitContract(t *testing.T) {
	submissions := &stubSubmissionService{submit: func(req dto.SubmitRequest) (dto.SubmitResponse, error) {
		require.Equal(t, "alice", req.Name)
		return dto.SubmitResponse{
			Score:   0.5,
			Correct: 1,
			Total:   2,
			Results: []evaluation.Result{
				{Question: "2+2=?", RawClassification: "Math", NormalizedClassification: "math", ExpectedLabel: "math", Correct: true},
				{Question: "capital of France?", RawClassification: "history", NormalizedClassification: "history", ExpectedLabel: "geo"},
			},
			NumUses:        1,
			RemainingTries: 4,
		}, nil
	}}
	app := newTestApp(submissions, &stubLeaderboardService{}, "")

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/submissions", dto.SubmitRequest{Name: "alice", Solution: "classify"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, compileSchema(t, "submit_response.schema.json").Validate(payload))
}

func TestSubmitMapsErrors(t *testing.T) {
	validationErr := validator.New().Struct(dto.SubmitRequest{})
	require.Error(t, validationErr)

	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "tries exceeded", err: service.ErrTriesExceeded, status: http.StatusForbidden, message: "maximum number of tries exceeded"},
		{name: "invalid name", err: service.ErrInvalidName, status: http.StatusBadRequest, message: "name is required"},
		{name: "validation", err: validationErr, status: http.StatusBadRequest, message: "validation failed"},
		{name: "store failure", err: io.ErrUnexpectedEOF, status: http.StatusInternalServerError, message: "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			submissions := &stubSubmissionService{submit: func(dto.SubmitRequest) (dto.SubmitResponse, error) {
				return dto.SubmitResponse{}, tc.err
			}}
			app := newTestApp(submissions, &stubLeaderboardService{}, "")

			resp, body := doRequest(t, app, http.MethodPost, "/api/v1/submissions", dto.SubmitRequest{Name: "bob"}, nil)
			require.Equal(t, tc.status, resp.StatusCode)

			var payload envelope
			require.NoError(t, json.Unmarshal(body, &payload))
			require.False(t, payload.Success)
			require.Equal(t, tc.message, payload.Message)
		})
	}
}

func TestSubmitValidationDetails(t *testing.T) {
	submissions := &stubSubmissionService{submit: func(req dto.SubmitRequest) (dto.SubmitResponse, error) {
		return dto.SubmitResponse{}, validator.New().Struct(req)
	}}
	app := newTestApp(submissions, &stubLeaderboardService{}, "")

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/submissions", map[string]string{"solution": "x"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var payload envelope
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Equal(t, "required", payload.Details["name"])
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	app := newTestApp(&stubSubmissionService{}, &stubLeaderboardService{}, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLatestSubmission(t *testing.T) {
	final := 0.0
	submissions := &stubSubmissionService{latest: func(name string) (dto.ScoreRecordResponse, error) {
		if name != "alice" {
			return dto.ScoreRecordResponse{}, service.ErrSubmissionNotFound
		}
		return dto.ScoreRecordResponse{Name: "alice", Status: "finalized", FinalScore: &final, Tries: 2}, nil
	}}
	app := newTestApp(submissions, &stubLeaderboardService{}, "")

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/submissions/alice/latest", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload envelope
	require.NoError(t, json.Unmarshal(body, &payload))
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(payload.Data, &record))
	require.Equal(t, 0.0, record["final_score"])
	require.Equal(t, "finalized", record["status"])

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/submissions/nobody/latest", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLeaderboardRoutes(t *testing.T) {
	leaderboards := &stubLeaderboardService{}
	app := newTestApp(&stubSubmissionService{}, leaderboards, "")
	schema := compileSchema(t, "leaderboard_response.schema.json")

	for _, path := range []string{"/api/v1/leaderboard?limit=5", "/api/v1/leaderboard/final", "/api/v1/leaderboard/top3"} {
		resp, body := doRequest(t, app, http.MethodGet, path, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)

		var payload interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		require.NoError(t, schema.Validate(payload), path)
	}

	_, _ = doRequest(t, app, http.MethodGet, "/api/v1/leaderboard", nil, nil)
	require.Zero(t, leaderboards.lastLimit)

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/leaderboard?limit=abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/leaderboard?limit=1000", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRescoreRequiresAdminToken(t *testing.T) {
	const secret = "admin-secret"
	submissions := &stubSubmissionService{}
	app := newTestApp(submissions, &stubLeaderboardService{}, secret)

	resp, _ := doRequest(t, app, http.MethodPost, "/api/v1/admin/rescore", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, submissions.rescores)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ops", "role": "admin"}).SignedString([]byte(secret))
	require.NoError(t, err)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/admin/rescore", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, submissions.rescores)

	var payload envelope
	require.NoError(t, json.Unmarshal(body, &payload))
	var summary dto.RescoreSummary
	require.NoError(t, json.Unmarshal(payload.Data, &summary))
	require.Equal(t, 2, summary.Finalized)
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(&stubSubmissionService{}, &stubLeaderboardService{}, "")

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "test", resp.Header.Get("X-Application"))

	var payload envelope
	require.NoError(t, json.Unmarshal(body, &payload))
	require.True(t, payload.Success)
}
