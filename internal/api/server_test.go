package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/outreach"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/store"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Ingest(ctx context.Context, opts pipeline.IngestOptions) (model.IngestSummary, string, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(model.IngestSummary), args.String(1), args.Error(2)
}

func (m *mockRunner) Qualify(ctx context.Context, opts pipeline.QualifyOptions) (model.QualifySummary, string, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(model.QualifySummary), args.String(1), args.Error(2)
}

func (m *mockRunner) Outreach(ctx context.Context, opts pipeline.OutreachOptions) (outreach.RunSummary, string, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(outreach.RunSummary), args.String(1), args.Error(2)
}

func (m *mockRunner) SendOne(ctx context.Context, leadID int64, dryRun *bool) (outreach.Result, error) {
	args := m.Called(ctx, leadID, dryRun)
	return args.Get(0).(outreach.Result), args.Error(1)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedLeads(t *testing.T, st store.Store, n int) []int64 {
	t.Helper()
	ctx := context.Background()
	var ids []int64
	for i := 0; i < n; i++ {
		domain := fmt.Sprintf("co%d.io", i)
		companyID, err := st.FindOrCreateCompany(ctx, model.Company{Name: fmt.Sprintf("Co %d", i), Domain: domain, LookupKey: domain})
		require.NoError(t, err)
		postingID, _, err := st.SavePosting(ctx, model.JobPosting{
			CompanyID: companyID, Title: "Platform Engineer", Source: "remoteok",
			URL: "https://remoteok.com/l/" + domain, Fingerprint: "fp-" + domain,
		})
		require.NoError(t, err)
		id, _, err := st.CreateLead(ctx, model.NewLead{
			CompanyID: companyID, JobPostingID: postingID, RelevanceScore: 70 + i,
			Reason: "fit", ContactRole: "CTO", CompanyPainPoints: []string{"slow deploys"},
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func newTestServer(t *testing.T, st store.Store, runner Runner) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(st, runner, metrics.New(nil), Options{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

type downStore struct {
	store.Store
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthStoreDown(t *testing.T) {
	srv := newTestServer(t, downStore{newTestStore(t)}, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "connection refused")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/leads", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPatch)
}

func TestRunIngest(t *testing.T) {
	r := &mockRunner{}
	r.On("Ingest", mock.Anything, pipeline.IngestOptions{Limit: 25}).
		Return(model.IngestSummary{Fetched: 25, Saved: 10}, "run-1", nil)
	srv := newTestServer(t, newTestStore(t), r)

	resp, body := do(t, http.MethodPost, srv.URL+"/ingestion/run?limit=25", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		RunID   string              `json:"run_id"`
		Summary model.IngestSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 10, got.Summary.Saved)
	r.AssertExpectations(t)
}

func TestRunIngestFailure(t *testing.T) {
	r := &mockRunner{}
	r.On("Ingest", mock.Anything, mock.Anything).
		Return(model.IngestSummary{}, "run-2", eris.New("pipeline: fetch postings"))
	srv := newTestServer(t, newTestStore(t), r)

	resp, body := do(t, http.MethodPost, srv.URL+"/ingestion/run", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), `"run_id":"run-2"`)
	assert.Contains(t, string(body), "fetch postings")
}

func TestRunEndpointsWithoutRunner(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), nil)

	for _, path := range []string{"/ingestion/run", "/ingestion/qualify", "/outreach/run", "/outreach/1"} {
		resp, _ := do(t, http.MethodPost, srv.URL+path, "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
}

func TestRunQualify(t *testing.T) {
	threshold := 0
	r := &mockRunner{}
	r.On("Qualify", mock.Anything, pipeline.QualifyOptions{Limit: 5, Threshold: &threshold}).
		Return(model.QualifySummary{Processed: 5, Qualified: 5}, "run-3", nil)
	srv := newTestServer(t, newTestStore(t), r)

	resp, body := do(t, http.MethodPost, srv.URL+"/ingestion/qualify?limit=5&threshold=0", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"qualified":5`)

	resp, _ = do(t, http.MethodPost, srv.URL+"/ingestion/qualify?threshold=101", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/ingestion/qualify?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	r.AssertNumberOfCalls(t, "Qualify", 1)
}

func TestIngestionStatus(t *testing.T) {
	st := newTestStore(t)
	seedLeads(t, st, 2)
	srv := newTestServer(t, st, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/ingestion/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got pipeline.IngestionStatus
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 2, got.Postings.Total)
	assert.Empty(t, got.LastRuns)
}

func TestListLeads(t *testing.T) {
	st := newTestStore(t)
	ids := seedLeads(t, st, 3)
	require.NoError(t, st.UpdateLeadStatus(context.Background(), ids[0], model.LeadStatusQualified, model.LeadStatusEmailed))
	srv := newTestServer(t, st, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/leads?status=qualified", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var leads []model.Lead
	require.NoError(t, json.Unmarshal(body, &leads))
	assert.Len(t, leads, 2)

	resp, body = do(t, http.MethodGet, srv.URL+"/leads?limit=1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &leads))
	assert.Len(t, leads, 1)

	resp, _ = do(t, http.MethodGet, srv.URL+"/leads?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListLeadsEmpty(t *testing.T) {
	srv := newTestServer(t, newTestStore(t), nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/leads", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestLeadStats(t *testing.T) {
	st := newTestStore(t)
	seedLeads(t, st, 2)
	srv := newTestServer(t, st, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/leads/stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var stats model.LeadStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[model.LeadStatusQualified])
}

func TestGetLead(t *testing.T) {
	st := newTestStore(t)
	ids := seedLeads(t, st, 1)
	srv := newTestServer(t, st, nil)

	resp, body := do(t, http.MethodGet, fmt.Sprintf("%s/leads/%d", srv.URL, ids[0]), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var lead model.Lead
	require.NoError(t, json.Unmarshal(body, &lead))
	assert.Equal(t, "Co 0", lead.CompanyName)
	assert.Equal(t, []string{"slow deploys"}, lead.CompanyPainPoints)

	resp, _ = do(t, http.MethodGet, srv.URL+"/leads/9999", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/leads/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateLeadStatus(t *testing.T) {
	st := newTestStore(t)
	ids := seedLeads(t, st, 1)
	srv := newTestServer(t, st, nil)
	url := fmt.Sprintf("%s/leads/%d/status", srv.URL, ids[0])

	resp, _ := do(t, http.MethodPatch, url, `{"status":"replied"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := do(t, http.MethodPatch, url, `{"status":"emailed"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"emailed"`)

	resp, _ = do(t, http.MethodPatch, url, `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, url, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, srv.URL+"/leads/9999/status", `{"status":"rejected"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunOutreach(t *testing.T) {
	dry := false
	r := &mockRunner{}
	r.On("Outreach", mock.Anything, pipeline.OutreachOptions{Limit: 3, DryRun: &dry}).
		Return(outreach.RunSummary{Attempted: 3, Sent: 2, Failed: 1}, "run-4", nil)
	r.On("Outreach", mock.Anything, pipeline.OutreachOptions{}).
		Return(outreach.RunSummary{}, "run-5", nil)
	srv := newTestServer(t, newTestStore(t), r)

	resp, body := do(t, http.MethodPost, srv.URL+"/outreach/run?limit=3&dry_run=false", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"sent":2`)

	resp, _ = do(t, http.MethodPost, srv.URL+"/outreach/run", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/outreach/run?dry_run=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	r.AssertExpectations(t)
}

func TestRunOutreachWithoutTransport(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedLeads(t, st, 2)

	disp := outreach.NewDispatcher(outreach.Deps{Store: st})
	coord := pipeline.NewCoordinator(pipeline.Deps{Store: st, Dispatcher: disp}, pipeline.Defaults{
		OutreachLimit: 10,
		DryRun:        true,
	})
	srv := newTestServer(t, st, coord)

	resp, body := do(t, http.MethodPost, srv.URL+"/outreach/run?dry_run=false", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "no mail transport configured")

	runs, err := st.ListRuns(ctx, model.RunFilter{Kind: model.RunKindOutreach})
	require.NoError(t, err)
	assert.Empty(t, runs)

	emails, err := st.ListEmails(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestSendOne(t *testing.T) {
	dry := true
	r := &mockRunner{}
	r.On("SendOne", mock.Anything, int64(7), &dry).Return(outreach.ResultSent, nil)
	r.On("SendOne", mock.Anything, int64(8), (*bool)(nil)).
		Return(outreach.ResultSkipped, eris.Wrap(outreach.ErrNotQualified, "lead 8 is emailed"))
	r.On("SendOne", mock.Anything, int64(9), (*bool)(nil)).
		Return(outreach.ResultFailed, eris.Wrap(store.ErrNotFound, "sqlite: lead 9"))
	srv := newTestServer(t, newTestStore(t), r)

	resp, body := do(t, http.MethodPost, srv.URL+"/outreach/7?dry_run=true", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"lead_id":7,"result":"sent"}`, string(body))

	resp, _ = do(t, http.MethodPost, srv.URL+"/outreach/8", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/outreach/9", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	r.On("SendOne", mock.Anything, int64(11), (*bool)(nil)).Return(outreach.ResultSkipped, outreach.ErrNoTransport)
	resp, _ = do(t, http.MethodPost, srv.URL+"/outreach/11", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/outreach/0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOutreachHistory(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	ids := seedLeads(t, st, 1)
	for i := 0; i < 3; i++ {
		_, err := st.LogOutreachAttempt(ctx, model.OutreachEmail{
			LeadID: ids[0], ToAddress: "hello@co0.io", Subject: fmt.Sprintf("s%d", i),
			Body: "b", DeliveryStatus: model.DeliveryPending,
		})
		require.NoError(t, err)
	}
	srv := newTestServer(t, st, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/outreach/history?limit=2", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var emails []model.OutreachEmail
	require.NoError(t, json.Unmarshal(body, &emails))
	assert.Len(t, emails, 2)
	assert.Equal(t, "Co 0", emails[0].CompanyName)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(nil)
	m.Item(metrics.StageIngest, "saved")
	srv := httptest.NewServer(NewServer(newTestStore(t), nil, m, Options{}).Handler())
	defer srv.Close()

	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `leadgen_items_total{outcome="saved",stage="ingest"} 1`)
}
