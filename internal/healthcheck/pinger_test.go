package healthcheck

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPingSuccessHitsBaseURL(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	p := New(srv.URL+"/ping/abc", time.Second, zap.NewNop())
	p.Ping(context.Background(), true, "synced 42 courses")

	require.Equal(t, "/ping/abc", gotPath)
	require.Equal(t, "synced 42 courses", gotBody)
}

func TestPingFailureHitsFailEndpoint(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	p := New(srv.URL+"/ping/abc", time.Second, zap.NewNop())
	p.Ping(context.Background(), false, "3 records failed")

	require.Equal(t, "/ping/abc/fail", gotPath)
}

func TestPingSwallowsTransportErrors(t *testing.T) {
	t.Parallel()

	// Nothing listening here; the ping must not panic or propagate.
	p := New("http://127.0.0.1:1/ping/abc", 100*time.Millisecond, zap.NewNop())
	p.Ping(context.Background(), true, "ok")
}

func TestPingUnconfiguredIsNoop(t *testing.T) {
	t.Parallel()

	p := New("", time.Second, zap.NewNop())
	p.Ping(context.Background(), true, "ok")
}
