package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternisai/leadgen-assistant/internal/auth"
	"github.com/eternisai/leadgen-assistant/internal/backend"
	"github.com/eternisai/leadgen-assistant/internal/generation"
	"github.com/eternisai/leadgen-assistant/internal/leads"
	"github.com/eternisai/leadgen-assistant/internal/logger"
	"github.com/eternisai/leadgen-assistant/internal/metrics"
)

// emulator is a minimal lead backend.
type emulator struct {
	mu        sync.Mutex
	leads     []leads.Lead
	submitted []backend.GenerationRequest
	deleted   []string
}

func newEmulator() *emulator {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return &emulator{
		leads: []leads.Lead{
			{ID: "l1", Name: "Ada", Email: "ada@example.com", Industry: "Software", LeadScore: 80, ContactStatus: leads.StatusNotContacted, CreatedAt: now},
			{ID: "l2", Name: "Grace", Phone: "+1 555 0100", Industry: "Healthcare", LeadScore: 40, ContactStatus: leads.StatusContacted, CreatedAt: now.Add(time.Hour)},
			{ID: "l3", Name: "Nobody", Industry: "Software", LeadScore: 90, CreatedAt: now.Add(2 * time.Hour)},
		},
	}
}

func (e *emulator) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, backend.AuthResponse{
			User:  backend.User{ID: "user-1", Email: body["email"], LeadsQuota: 100, LeadsUsed: 85},
			Token: "opaque-token",
		})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/leads", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		defer e.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"leads": e.leads})
	})
	mux.HandleFunc("PUT /api/leads/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "l2" {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Lead is locked"})
			return
		}
		var patch leads.LeadPatch
		_ = json.NewDecoder(r.Body).Decode(&patch)
		writeJSON(w, http.StatusOK, leads.Lead{ID: r.PathValue("id"), ContactStatus: *patch.ContactStatus})
	})
	mux.HandleFunc("DELETE /api/leads/{id}", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.deleted = append(e.deleted, r.PathValue("id"))
		e.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/leads/generate-job", func(w http.ResponseWriter, r *http.Request) {
		var req backend.GenerationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		e.mu.Lock()
		e.submitted = append(e.submitted, req)
		e.mu.Unlock()
		writeJSON(w, http.StatusOK, backend.SubmitResult{JobID: "job-1"})
	})
	mux.HandleFunc("GET /api/leads/job/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		n := 3
		writeJSON(w, http.StatusOK, backend.JobStatusPayload{JobID: r.PathValue("id"), Status: "completed", Progress: 100, LeadsCount: &n})
	})

	return mux
}

func (e *emulator) deletedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.deleted...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	t       *testing.T
	router  *gin.Engine
	store   *auth.Store
	manager *generation.Manager
	vm      *leads.ViewModel
	emu     *emulator
	token   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	emu := newEmulator()
	srv := httptest.NewServer(emu.handler())
	t.Cleanup(srv.Close)

	log := logger.Nop()
	store := auth.NewStore(filepath.Join(t.TempDir(), "auth.json"), nil, log)
	client := backend.NewClient(srv.URL, 5*time.Second, log,
		backend.WithTokenSource(store),
		backend.WithUnauthorizedHook(store.Clear))
	store.SetAuthenticator(client)

	vm := leads.NewViewModel(client, log)
	manager := generation.NewManager(client, generation.Options{PollInterval: 10 * time.Millisecond}, 10, log)
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	router := NewRouter(Deps{
		Sessions:       manager,
		Leads:          vm,
		Auth:           store,
		Metrics:        metrics.New(),
		AllowedOrigins: []string{"http://localhost:3000"},
		Logger:         log,
	})

	return &harness{t: t, router: router, store: store, manager: manager, vm: vm, emu: emu}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login() {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: "ada@example.com", Password: "secret"})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	h.token = decode[map[string]any](h.t, rec)["token"].(string)
	require.NotEmpty(h.t, h.token)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["authenticated"])

	rec = h.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "leadgen_sessions_active")
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/api/leads", "/api/auth/quota", "/api/auth/me"} {
		rec := h.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/sessions", nil).Code)
}

func TestCallersWithoutTheSessionTokenAreRejected(t *testing.T) {
	h := newHarness(t)
	h.login()
	token := h.token

	h.token = ""
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/auth/me", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodDelete, "/api/leads/l1?confirm=true", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/sessions", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/auth/logout", nil).Code)
	assert.Empty(t, h.emu.deletedIDs())
	assert.Equal(t, 0, h.manager.ActiveCount())
	assert.True(t, h.store.IsAuthenticated())

	h.token = "forged"
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/auth/me", nil).Code)

	h.token = token
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/auth/me", nil).Code)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/auth/login", LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decode[map[string]any](t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.login()

	quota := decode[auth.QuotaStatus](t, h.do(http.MethodGet, "/api/auth/quota", nil))
	assert.Equal(t, 85, quota.Usage)
	assert.Equal(t, 15, quota.Remaining)
	assert.True(t, quota.IsNearLimit)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/api/auth/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/leads", nil).Code)
}

func TestListLeadsAfterLogin(t *testing.T) {
	h := newHarness(t)
	h.login()

	page := decode[LeadsPage](t, h.do(http.MethodGet, "/api/leads?page=1&size=10", nil))
	assert.Equal(t, 3, page.Fetched)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Leads, 2)
	// newest first
	assert.Equal(t, "l2", page.Leads[0].ID)
	assert.Equal(t, []string{"Healthcare", "Software"}, page.Industries)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/leads?page=x", nil).Code)
}

func TestFiltersAndSort(t *testing.T) {
	h := newHarness(t)
	h.login()

	rec := h.do(http.MethodPut, "/api/leads/filters", map[string]any{"industry": "Software"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode[map[string]any](t, rec)["count"])

	rec = h.do(http.MethodDelete, "/api/leads/filters", nil)
	assert.Equal(t, 2.0, decode[map[string]any](t, rec)["count"])

	rec = h.do(http.MethodPut, "/api/leads/sort", SortRequest{Field: "lead_score"})
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[LeadsPage](t, h.do(http.MethodGet, "/api/leads", nil))
	assert.Equal(t, leads.Sort{Field: leads.SortByLeadScore, Direction: leads.Ascending}, page.Sort)
	assert.Equal(t, "l2", page.Leads[0].ID)

	h.do(http.MethodPut, "/api/leads/sort", SortRequest{Field: "lead_score"})
	page = decode[LeadsPage](t, h.do(http.MethodGet, "/api/leads", nil))
	assert.Equal(t, leads.Descending, page.Sort.Direction)
	assert.Equal(t, "l1", page.Leads[0].ID)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/leads/sort", SortRequest{Field: "shoe_size"}).Code)
}

func TestUpdateLeadStatus(t *testing.T) {
	h := newHarness(t)
	h.login()

	rec := h.do(http.MethodPatch, "/api/leads/l1/status", StatusRequest{Status: leads.StatusQualified})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, leads.StatusQualified, decode[leads.Lead](t, rec).ContactStatus)

	rec = h.do(http.MethodPatch, "/api/leads/l2/status", StatusRequest{Status: leads.StatusConverted})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Lead is locked", decode[map[string]any](t, rec)["error"])
	lead, ok := h.vm.Lead("l2")
	require.True(t, ok)
	assert.Equal(t, leads.StatusContacted, lead.ContactStatus)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPatch, "/api/leads/l1/status", StatusRequest{Status: "bogus"}).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPatch, "/api/leads/zzz/status", StatusRequest{Status: leads.StatusContacted}).Code)
}

func TestDeleteLeadNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.login()

	assert.Equal(t, http.StatusPreconditionRequired, h.do(http.MethodDelete, "/api/leads/l1", nil).Code)
	assert.Empty(t, h.emu.deletedIDs())

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/leads/l1?confirm=true", nil).Code)
	assert.Equal(t, []string{"l1"}, h.emu.deletedIDs())
	_, ok := h.vm.Lead("l1")
	assert.False(t, ok)
}

func TestBulkStatusUsesSelection(t *testing.T) {
	h := newHarness(t)
	h.login()

	rec := h.do(http.MethodPost, "/api/leads/selection/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/leads/bulk/status", StatusRequest{Status: leads.StatusQualified})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, []any{"l2"}, body["details"].(map[string]any)["failed"])

	lead, _ := h.vm.Lead("l1")
	assert.Equal(t, leads.StatusQualified, lead.ContactStatus)
}

func TestConversationRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.login()

	rec := h.do(http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	snap := decode[generation.Snapshot](t, rec)
	assert.Equal(t, generation.PhaseAsking, snap.Phase)
	require.Len(t, snap.Messages, 1)

	base := "/api/sessions/" + snap.ID
	for _, answer := range []string{"B2B startups", "Software", "crm, saas", "Austin, TX", "5"} {
		rec = h.do(http.MethodPost, base+"/messages", MessageRequest{Text: answer})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, generation.PhaseConfirming, decode[generation.Snapshot](t, rec).Phase)

	rec = h.do(http.MethodPost, base+"/messages", MessageRequest{Text: "yes please"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		return decode[generation.Snapshot](t, h.do(http.MethodGet, base, nil)).Complete
	}, 2*time.Second, 10*time.Millisecond)

	final := decode[generation.Snapshot](t, h.do(http.MethodGet, base, nil))
	require.NotNil(t, final.LeadsCount)
	assert.Equal(t, 3, *final.LeadsCount)

	h.emu.mu.Lock()
	require.Len(t, h.emu.submitted, 1)
	assert.Equal(t, 5, h.emu.submitted[0].RequestedCount)
	assert.Equal(t, []string{"crm", "saas"}, h.emu.submitted[0].Keywords)
	h.emu.mu.Unlock()

	// empty input
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, base+"/messages", map[string]string{}).Code)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, base, nil).Code)
}

func TestSessionsOfOtherUsersAreHidden(t *testing.T) {
	h := newHarness(t)
	h.login()

	other, err := h.manager.Create("user-2")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/sessions/"+other.ID(), nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/sessions/"+other.ID(), nil).Code)
	assert.Equal(t, 1, h.manager.ActiveCount())
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/leads", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamSession(t *testing.T) {
	h := newHarness(t)
	h.login()

	srv := httptest.NewServer(h.router)
	t.Cleanup(srv.Close)

	s, err := h.manager.Create("user-1")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + s.ID() + "/stream?token=" + h.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, StreamMessageSnapshot, msg.Type)
	require.NotNil(t, msg.Snapshot)
	assert.Len(t, msg.Snapshot.Messages, 1)

	require.NoError(t, s.SubmitAnswer("B2B startups"))
	msg = StreamMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	require.NotNil(t, msg.Snapshot)
	assert.Len(t, msg.Snapshot.Messages, 3)

	require.NoError(t, h.manager.Delete(s.ID()))
	msg = StreamMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, StreamMessageClosed, msg.Type)

	assert.Eventually(t, func() bool { return h.streamsCount() == 0 }, time.Second, 10*time.Millisecond)
}

func (h *harness) streamsCount() int {
	return decode[struct {
		ActiveStreams int `json:"active_streams"`
	}](h.t, h.do(http.MethodGet, "/health", nil)).ActiveStreams
}
