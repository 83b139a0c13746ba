package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPTransportFetch(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("tile bytes"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport("tilecache-test", zap.NewNop())
	data, err := tr.Fetch(context.Background(), srv.URL+"/0/0/0.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("tile bytes"), data)
	assert.Equal(t, "tilecache-test", gotUA)
}

func TestHTTPTransportStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	tr := NewHTTPTransport("tilecache-test", zap.NewNop())
	_, err := tr.Fetch(context.Background(), srv.URL)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestHTTPTransportHonorsCancellation(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewHTTPTransport("tilecache-test", zap.NewNop())
	_, err := tr.Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestHTTPTransportProxyAuthRetry(t *testing.T) {
	t.Parallel()

	var attempts int
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if auth := r.Header.Get("Proxy-Authorization"); auth == "" {
			w.WriteHeader(http.StatusProxyAuthRequired)
			return
		} else {
			gotAuth = auth
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport("tilecache-test", zap.NewNop())
	tr.SetProxy(Proxy{Username: "user", Password: "pass"})

	data, err := tr.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, 2, attempts, "credentials are supplied only after the challenge")
	assert.NotEmpty(t, gotAuth)
}
