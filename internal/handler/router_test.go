package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/SergeiKhy/tinyurl/internal/handler"
	"github.com/SergeiKhy/tinyurl/internal/models"
	"github.com/SergeiKhy/tinyurl/internal/service"
	"github.com/SergeiKhy/tinyurl/internal/service/mocks"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeRe = regexp.MustCompile(`^[A-Za-z0-9]{6,8}$`)

type testAPI struct {
	router *gin.Engine
	repo   *mocks.MockLinkRepository
	cache  *mocks.MockCacheRepository
}

// newTestAPI собирает роутер поверх настоящего сервиса и in-memory репозиториев
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := mocks.NewMockLinkRepository()
	cache := mocks.NewMockCacheRepository()
	svc := service.NewLinkService(repo, cache, nil)
	router := handler.NewRouter(svc, handler.RouterConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		Version:        "1.0",
	}, nil)

	return &testAPI{router: router, repo: repo, cache: cache}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) create(t *testing.T, req handler.CreateLinkRequest) models.LinkSummary {
	t.Helper()
	w := a.do(http.MethodPost, "/api/links", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var summary models.LinkSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	return summary
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestAPI_CreateRedirectAndCount(t *testing.T) {
	api := newTestAPI(t)

	created := api.create(t, handler.CreateLinkRequest{URL: "https://example.com"})
	assert.Regexp(t, codeRe, created.Code)
	assert.Equal(t, "https://example.com", created.URL)
	assert.Zero(t, created.Clicks)
	assert.Nil(t, created.LastClicked)

	w := api.do(http.MethodGet, "/"+created.Code, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Location"))

	w = api.do(http.MethodGet, "/api/links/"+created.Code, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.LinkSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Clicks)
	require.NotNil(t, stats.LastClicked)
	assert.False(t, stats.LastClicked.Before(stats.CreatedAt))
}

func TestAPI_NewLinkSerializesNullLastClicked(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/api/links", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Contains(t, raw, "lastClicked")
	assert.Nil(t, raw["lastClicked"])
	assert.NotContains(t, raw, "id")
}

func TestAPI_CustomCode(t *testing.T) {
	api := newTestAPI(t)

	created := api.create(t, handler.CreateLinkRequest{URL: "https://example.com/a", Code: "abc123"})
	assert.Equal(t, "abc123", created.Code)

	w := api.do(http.MethodPost, "/api/links", handler.CreateLinkRequest{URL: "https://example.com/b", Code: "abc123"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Code already exists", decodeError(t, w))

	// исходная ссылка не перезаписана
	w = api.do(http.MethodGet, "/abc123", nil)
	assert.Equal(t, "https://example.com/a", w.Header().Get("Location"))
}

func TestAPI_ValidationErrors(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name          string
		body          any
		expectedError string
	}{
		{"not a url", handler.CreateLinkRequest{URL: "not-a-url"}, "Invalid URL"},
		{"missing url", `{}`, "Invalid URL"},
		{"relative url", handler.CreateLinkRequest{URL: "/just/a/path"}, "Invalid URL"},
		{"short code", handler.CreateLinkRequest{URL: "https://example.com", Code: "ab"}, "Code must be 6-8 alphanumeric characters"},
		{"long code", handler.CreateLinkRequest{URL: "https://example.com", Code: "abcdefghi"}, "Code must be 6-8 alphanumeric characters"},
		{"code with dash", handler.CreateLinkRequest{URL: "https://example.com", Code: "my-code"}, "Code must be 6-8 alphanumeric characters"},
		{"malformed json", `{"url":`, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodPost, "/api/links", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.expectedError, decodeError(t, w))
		})
	}

	assert.Zero(t, api.repo.Count(), "rejected requests must not create links")
}

func TestAPI_InvalidURLWithInvalidCodeReportsURL(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/api/links", handler.CreateLinkRequest{URL: "nope", Code: "ab"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid URL", decodeError(t, w))
}

func TestAPI_NotFound(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/links/zzzzzz", "/api/links/ab", "/zzzzzz", "/x.y"} {
		w := api.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "Link not found", decodeError(t, w), path)
	}

	assert.Zero(t, api.repo.Count(), "redirect to a missing code must not create a record")
}

func TestAPI_UnknownRoute(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/links/abc123/stats", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, decodeError(t, w))
}

func TestAPI_Delete(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, handler.CreateLinkRequest{URL: "https://example.com/delete-me"})

	w := api.do(http.MethodDelete, "/api/links/"+created.Code, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = api.do(http.MethodGet, "/api/links/"+created.Code, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/"+created.Code, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodDelete, "/api/links/"+created.Code, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Link not found", decodeError(t, w))
}

func TestAPI_ListNewestFirst(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/links", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	api.create(t, handler.CreateLinkRequest{URL: "https://example.com/1", Code: "first1"})
	api.create(t, handler.CreateLinkRequest{URL: "https://example.com/2", Code: "second2"})
	api.create(t, handler.CreateLinkRequest{URL: "https://example.com/3", Code: "third33"})

	w = api.do(http.MethodGet, "/api/links", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list []models.LinkSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "third33", list[0].Code)
	assert.Equal(t, "second2", list[1].Code)
	assert.Equal(t, "first1", list[2].Code)
}

func TestAPI_RepeatedClicksAccumulate(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, handler.CreateLinkRequest{URL: "https://example.com/count", Code: "count01"})

	for i := 0; i < 5; i++ {
		w := api.do(http.MethodGet, "/"+created.Code, nil)
		require.Equal(t, http.StatusFound, w.Code)
	}

	w := api.do(http.MethodGet, "/api/links/count01", nil)
	var stats models.LinkSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 5, stats.Clicks)
}

func TestAPI_CORSPreflight(t *testing.T) {
	api := newTestAPI(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodOptions, "/api/links", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	api.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPI_CacheLockFailureKeepsLink(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, handler.CreateLinkRequest{URL: "https://example.com/keep", Code: "keep123"})

	api.cache.FailOn("Lock", errors.New("redis timeout"))

	w := api.do(http.MethodDelete, "/api/links/"+created.Code, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server error", decodeError(t, w))

	api.cache.FailOn("Lock", nil)
	w = api.do(http.MethodGet, "/api/links/"+created.Code, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
