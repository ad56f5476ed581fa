package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ZacMelendez/passporter/internal/importer"
	"github.com/ZacMelendez/passporter/internal/model"
	"github.com/ZacMelendez/passporter/internal/persistence"
	"github.com/ZacMelendez/passporter/internal/server"
	"github.com/ZacMelendez/passporter/internal/testhelpers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScheduler struct {
	batchID        string
	queued         int
	err            error
	gotConcurrency int
	entries        map[int64]*model.Entry
}

func (s *stubScheduler) StartPendingBatch(concurrency int) (string, int, error) {
	s.gotConcurrency = concurrency
	return s.batchID, s.queued, s.err
}

func (s *stubScheduler) DiscoverOne(id int64) (*model.Entry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return nil, persistence.ErrEntryNotFound
	}
	return entry, nil
}

type stubDiscovery struct {
	got    string
	result *model.DiscoveryResult
}

func (d *stubDiscovery) DiscoverWithFallback(_ context.Context, rawURL string) *model.DiscoveryResult {
	d.got = rawURL
	return d.result
}

func newTestRouter(t *testing.T) (*gin.Engine, *testhelpers.MemoryEntryStore, *stubScheduler, *stubDiscovery) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testhelpers.NewTestLogger()
	store := testhelpers.NewMemoryEntryStore()
	sched := &stubScheduler{batchID: "batch-1", entries: make(map[int64]*model.Entry)}
	disc := &stubDiscovery{result: &model.DiscoveryResult{Emails: []string{}}}
	handler := server.NewEntryHandler(store, sched, disc, importer.NewCSVImporter(store, log), log)
	return server.NewRouter(handler, prometheus.NewRegistry(), log), store, sched, disc
}

func doRequest(router *gin.Engine, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	encoded, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(encoded)
}

func TestCreateEntry(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/entries",
		jsonBody(t, gin.H{"url": "app.example.com/login", "username": "alice"}), "application/json")

	require.Equal(t, http.StatusCreated, w.Code)
	var entry model.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, int64(1), entry.ID)
	assert.Equal(t, "https://app.example.com", entry.URL)
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, model.StatusPending, entry.Status)
}

func TestCreateEntryValidation(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/entries",
		jsonBody(t, gin.H{"url": "example.com"}), "application/json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestCreateEntryDuplicate(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	body := gin.H{"url": "https://example.com", "username": "alice"}

	first := doRequest(router, http.MethodPost, "/api/v1/entries", jsonBody(t, body), "application/json")
	require.Equal(t, http.StatusCreated, first.Code)

	second := doRequest(router, http.MethodPost, "/api/v1/entries", jsonBody(t, body), "application/json")
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestGetEntry(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	id, err := store.Create(&model.Entry{URL: "https://example.com", Username: "alice"})
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/v1/entries/1", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	var entry model.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, id, entry.ID)
}

func TestGetEntryNotFound(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	assert.Equal(t, http.StatusNotFound, doRequest(router, http.MethodGet, "/api/v1/entries/99", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(router, http.MethodGet, "/api/v1/entries/abc", nil, "").Code)
}

func TestListEntriesWithStatusFilter(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	id, err := store.Create(&model.Entry{URL: "https://done.example", Username: "alice"})
	require.NoError(t, err)
	require.NoError(t, store.MarkDone(id, nil, []string{"a@done.example"}))
	_, err = store.Create(&model.Entry{URL: "https://pending.example", Username: "bob"})
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/v1/entries?status=done", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	var entries []model.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "https://done.example", entries[0].URL)

	all := doRequest(router, http.MethodGet, "/api/v1/entries", nil, "")
	require.NoError(t, json.Unmarshal(all.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)
}

func TestDeleteEntry(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	_, err := store.Create(&model.Entry{URL: "https://example.com", Username: "alice"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodDelete, "/api/v1/entries/1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(router, http.MethodDelete, "/api/v1/entries/1", nil, "").Code)
}

func TestScrapeOneEntry(t *testing.T) {
	router, _, sched, _ := newTestRouter(t)
	privacyURL := "https://example.com/privacy"
	sched.entries[1] = &model.Entry{
		ID:            1,
		URL:           "https://example.com",
		Username:      "alice",
		Status:        model.StatusDone,
		PrivacyURL:    &privacyURL,
		ScrapedEmails: []string{"privacy@example.com"},
	}

	w := doRequest(router, http.MethodPost, "/api/v1/entries/1/scrape", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	var entry model.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, model.StatusDone, entry.Status)
	assert.Equal(t, []string{"privacy@example.com"}, entry.ScrapedEmails)

	missing := doRequest(router, http.MethodPost, "/api/v1/entries/42/scrape", nil, "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestDiscover(t *testing.T) {
	router, _, _, disc := newTestRouter(t)
	privacyURL := "https://printshop.example/privacy"
	disc.result = &model.DiscoveryResult{PrivacyURL: &privacyURL, Emails: []string{"dpo@printshop.example"}}

	w := doRequest(router, http.MethodPost, "/api/v1/discover",
		jsonBody(t, gin.H{"url": "printshop.example"}), "application/json")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://printshop.example", disc.got)
	var result model.DiscoveryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.PrivacyURL)
	assert.Equal(t, privacyURL, *result.PrivacyURL)
	assert.Equal(t, []string{"dpo@printshop.example"}, result.Emails)
}

func TestScrapeAll(t *testing.T) {
	router, _, sched, _ := newTestRouter(t)
	sched.queued = 4

	w := doRequest(router, http.MethodPost, "/api/v1/scrape",
		jsonBody(t, gin.H{"concurrency": 7}), "application/json")

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 7, sched.gotConcurrency)
	var resp struct {
		BatchID string `json:"batch_id"`
		Queued  int    `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "batch-1", resp.BatchID)
	assert.Equal(t, 4, resp.Queued)
}

func TestScrapeAllWithoutBody(t *testing.T) {
	router, _, sched, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/scrape", nil, "")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Zero(t, sched.gotConcurrency)
}

func TestProgress(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	id, err := store.Create(&model.Entry{URL: "https://done.example", Username: "alice"})
	require.NoError(t, err)
	require.NoError(t, store.MarkDone(id, nil, nil))
	_, err = store.Create(&model.Entry{URL: "https://pending.example", Username: "bob"})
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/v1/scrape/progress", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	var progress model.ScrapeProgress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.Equal(t, 1, progress.Done)
	assert.Equal(t, 1, progress.Pending)
	assert.Equal(t, 2, progress.Total)
}

func TestImportCSV(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "export.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("url,username,password\nexample.com,dana,pw\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	w := doRequest(router, http.MethodPost, "/api/v1/entries/import", body, writer.FormDataContentType())

	require.Equal(t, http.StatusOK, w.Code)
	var result importer.ImportResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Created)

	_, err = store.GetByURLAndUsername("https://example.com", "dana")
	assert.NoError(t, err)
}

func TestImportCSVWithoutFile(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/entries/import", nil, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportCSV(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	_, err := store.Create(&model.Entry{URL: "https://example.com", Username: "alice"})
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/v1/entries/export", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "url,username,status,privacy_url,scraped_emails,error_message", lines[0])
	assert.Contains(t, lines[1], "https://example.com")
}

func TestHealth(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/metrics", nil, "").Code)
}
