package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/auth"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

type apiClient struct {
	t    *testing.T
	base string
	am   *auth.Manager
}

func newAPI(t *testing.T, h *harness, health HealthFunc) *apiClient {
	t.Helper()
	am := auth.NewManager("test-secret", time.Hour)
	srv := httptest.NewServer(NewRouter(h.svc, am, nil, health))
	t.Cleanup(srv.Close)
	return &apiClient{t: t, base: srv.URL, am: am}
}

func (c *apiClient) do(method, path string, as *match.Player, body any, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	if as != nil {
		tok, _, err := c.am.Issue(*as)
		require.NoError(c.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHTTPMatchLifecycle(t *testing.T) {
	h := newHarness(t)
	api := newAPI(t, h, nil)

	var created matchdto.Match
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/matches", &alice, nil, &created))
	assert.Equal(t, alice.ID, created.WhitePlayerID)
	assert.Equal(t, "WAITING", created.Status)
	assert.Equal(t, int64(600_000), created.WhiteRemainingMs)
	assert.Equal(t, match.StartPosition, created.FEN)

	var errBody matchdto.ErrorResponse
	require.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/api/matches", &alice, nil, &errBody))
	assert.Equal(t, matchdto.CodeAlreadyActive, errBody.Code)

	var page matchdto.MatchPage
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/matches", nil, nil, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.ID, page.Items[0].ID)
	assert.Equal(t, 9, page.PageSize)

	require.Equal(t, http.StatusConflict, api.do(http.MethodPut, "/api/matches/"+created.ID+"/join", &alice, nil, &errBody))
	assert.Equal(t, matchdto.CodeSelfJoin, errBody.Code)

	var joined matchdto.Match
	require.Equal(t, http.StatusOK, api.do(http.MethodPut, "/api/matches/"+created.ID+"/join", &bob, nil, &joined))
	assert.Equal(t, "PLAYING", joined.Status)
	assert.Equal(t, bob.ID, joined.BlackPlayerID)
	assert.NotNil(t, joined.LastMoveAt)

	require.Equal(t, http.StatusConflict, api.do(http.MethodPut, "/api/matches/"+created.ID+"/join", &carol, nil, &errBody))
	assert.Equal(t, matchdto.CodeNotWaiting, errBody.Code)

	var current matchdto.Match
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/matches/current", &bob, nil, &current))
	assert.Equal(t, created.ID, current.ID)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodGet, "/api/matches/current", &carol, nil, nil))

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/matches?status=playing", nil, nil, &page))
	assert.Len(t, page.Items, 1)
}

func TestHTTPCreateWithClockSettings(t *testing.T) {
	h := newHarness(t)
	api := newAPI(t, h, nil)

	minutes, inc := 3, 2
	var created matchdto.Match
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/matches", &alice,
		matchdto.CreateMatchRequest{TimeLimitMinutes: &minutes, IncrementSeconds: &inc}, &created))
	assert.Equal(t, int64(180_000), created.BlackRemainingMs)
	assert.Equal(t, int64(2_000), created.IncrementMs)

	bad := 0
	var errBody matchdto.ErrorResponse
	require.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/matches", &bob,
		matchdto.CreateMatchRequest{TimeLimitMinutes: &bad}, &errBody))
	assert.Equal(t, matchdto.CodeBadRequest, errBody.Code)
}

func TestHTTPCancel(t *testing.T) {
	h := newHarness(t)
	api := newAPI(t, h, nil)

	var created matchdto.Match
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/matches", &alice, nil, &created))

	var errBody matchdto.ErrorResponse
	require.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, "/api/matches/"+created.ID, &bob, nil, &errBody))
	assert.Equal(t, matchdto.CodeForbidden, errBody.Code)

	var msg matchdto.MessageResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodDelete, "/api/matches/"+created.ID, &alice, nil, &msg))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/matches/"+created.ID, nil, nil, &errBody))
	assert.Equal(t, matchdto.CodeNotFound, errBody.Code)
}

func TestHTTPRequiresToken(t *testing.T) {
	h := newHarness(t)
	api := newAPI(t, h, nil)

	var errBody matchdto.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/api/matches", nil, nil, &errBody))
	assert.Equal(t, matchdto.CodeUnauthorized, errBody.Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/matches/current", nil, nil, &errBody))
}

func TestHTTPMyMatches(t *testing.T) {
	h := newHarness(t)
	api := newAPI(t, h, nil)

	first, _, _ := h.started(t)
	_, err := h.svc.ResignMatch(h.ctx, first.ID, bob.ID)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	second, err := h.svc.CreateMatch(h.ctx, alice, clock.Default())
	require.NoError(t, err)
	_, err = h.svc.CreateMatch(h.ctx, carol, clock.Default())
	require.NoError(t, err)

	var page matchdto.MatchPage
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/matches/mine", &alice, nil, &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, second.ID, page.Items[0].ID)
	assert.Equal(t, first.ID, page.Items[1].ID)
	assert.NotNil(t, page.Items[1].StartedAt)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/matches/mine?status=finished", &bob, nil, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.Equal(t, "FINISHED", page.Items[0].Status)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/matches/mine?status=all&page=2&page_size=1", &alice, nil, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)

	var errBody matchdto.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/matches/mine", nil, nil, &errBody))
	assert.Equal(t, matchdto.CodeUnauthorized, errBody.Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/matches/mine?status=bogus", &alice, nil, &errBody))
}

func TestHTTPBadQuery(t *testing.T) {
	h := newHarness(t)
	api := newAPI(t, h, nil)

	var errBody matchdto.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/matches?page=x", nil, nil, &errBody))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/matches?status=bogus", nil, nil, &errBody))
}

func TestHTTPMessages(t *testing.T) {
	h := newHarness(t)
	api := newAPI(t, h, nil)
	m, _, _ := h.started(t)
	_, err := h.svc.PostChat(context.Background(), m.ID, alice, "hello")
	require.NoError(t, err)

	var msgs []matchdto.ChatMessage
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/matches/"+m.ID+"/messages", nil, nil, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, alice.ID, msgs[0].UserID)
}

func TestHTTPHealth(t *testing.T) {
	h := newHarness(t)
	var msg matchdto.MessageResponse

	ok := newAPI(t, h, func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, ok.do(http.MethodGet, "/healthz", nil, nil, &msg))

	down := newAPI(t, h, func(context.Context) error { return errors.New("redis down") })
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/healthz", nil, nil, &msg))
}
