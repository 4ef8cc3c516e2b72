package remoteok

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/resilience"
)

const sampleFeed = `[
	{"legal": "API Terms of Service: please link back to RemoteOK"},
	{"id": "101", "epoch": 1717200000, "date": "2024-06-01T00:00:00+00:00",
	 "company": "Acme", "company_logo": "https://www.acme.io/logo.png",
	 "position": "senior devops engineer", "tags": ["DevOps", "AWS"],
	 "description": "<p>Run our <b>infra</b></p>", "location": "Worldwide",
	 "apply_url": "https://acme.io/apply", "url": "https://remoteok.com/l/101"},
	{"id": 102, "epoch": "1717300000", "company": "Globex", "position": "Data Engineer",
	 "url": "https://remoteok.com/l/102"},
	"not an object",
	{"id": "103", "company": "Initech", "position": "Platform Engineer"}
]`

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func newTestClient(srvURL string, opts ...Option) Client {
	base := []Option{
		WithBaseURL(srvURL),
		WithRetry(fastRetry(3)),
		WithRateLimit(rate.NewLimiter(rate.Inf, 1)),
	}
	return NewClient(append(base, opts...)...)
}

func TestFetchPostings_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		assert.Equal(t, "devops,golang", r.URL.Query().Get("tags"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleFeed)) //nolint:errcheck
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, WithTags([]string{"devops", "golang"}))
	jobs, err := client.FetchPostings(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, FlexString("101"), jobs[0].ID)
	assert.Equal(t, "Acme", jobs[0].Company)
	assert.Equal(t, []string{"DevOps", "AWS"}, jobs[0].Tags)
	epoch, ok := jobs[0].Epoch.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(1717200000), epoch)

	assert.Equal(t, FlexString("102"), jobs[1].ID)
	epoch, ok = jobs[1].Epoch.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(1717300000), epoch)

	assert.Equal(t, FlexString("103"), jobs[2].ID)
}

func TestFetchPostings_NoTagsParam(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`[]`)) //nolint:errcheck
	}))
	defer srv.Close()

	jobs, err := newTestClient(srv.URL).FetchPostings(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestFetchPostings_LimitAppliedAfterFiltering(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sampleFeed)) //nolint:errcheck
	}))
	defer srv.Close()

	jobs, err := newTestClient(srv.URL).FetchPostings(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, FlexString("101"), jobs[0].ID)
	assert.Equal(t, FlexString("102"), jobs[1].ID)
}

func TestFetchPostings_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleFeed)) //nolint:errcheck
	}))
	defer srv.Close()

	jobs, err := newTestClient(srv.URL).FetchPostings(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPostings_RetriesAnyServerError(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusNotImplemented, 520, 522} {
		t.Run(http.StatusText(code)+"_"+strconv.Itoa(code), func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(code)
					return
				}
				w.Write([]byte(sampleFeed)) //nolint:errcheck
			}))
			defer srv.Close()

			jobs, err := newTestClient(srv.URL).FetchPostings(context.Background(), 0)
			require.NoError(t, err)
			assert.Len(t, jobs, 3)
			assert.Equal(t, int32(2), calls.Load())
		})
	}
}

func TestFetchPostings_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchPostings(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPostings_ForbiddenNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden")) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchPostings(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPostings_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"not": "a list"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchPostings(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestFetchPostings_CustomUserAgent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "leadgen-test/0.1", r.Header.Get("User-Agent"))
		w.Write([]byte(`[]`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, WithUserAgent("leadgen-test/0.1")).FetchPostings(context.Background(), 0)
	require.NoError(t, err)
}

func TestFlexString_Int64(t *testing.T) {
	t.Parallel()

	n, ok := FlexString(" 42 ").Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = FlexString("").Int64()
	assert.False(t, ok)
}
