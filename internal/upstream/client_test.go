package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchVerifiedRuns(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"data":[{"id":"r1","level":"l1","status":{"status":"verified"},` +
			`"players":[{"id":"u1"}],"times":{"primary_t":42.5},"date":"2024-03-01",` +
			`"values":{"r8rg5zrn":"5q8ze9gq"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "9d3eqg1l", time.Second)
	runs, err := c.FetchVerifiedRuns(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)
	assert.Equal(t, 42.5, runs[0].Times.PrimaryT)
	assert.Equal(t, "/runs", gotPath)
	assert.Contains(t, gotQuery, "level=l1")
	assert.Contains(t, gotQuery, "status=verified")
}

func TestFetchLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/games/9d3eqg1l/levels", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"l1","name":"Prologue"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "9d3eqg1l", time.Second)
	levels, err := c.FetchLevels(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "Prologue", levels[0].Name)
}

func TestRemoteErrorCarriesStatusAndRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "9d3eqg1l", time.Second)
	_, err := c.FetchUser(context.Background(), "u1")

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusServiceUnavailable, remoteErr.Status)
	assert.Equal(t, "users/u1", remoteErr.Request)
}

func TestTransportErrorOnUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // unreachable

	c := NewClient(srv.URL, "9d3eqg1l", time.Second)
	_, err := c.FetchLevels(context.Background())

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestUnknownDisplayStyleRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"u1","names":{"international":"First"},` +
			`"weblink":"https://example.com/u1","name-style":{"style":"sparkly"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "9d3eqg1l", time.Second)
	_, err := c.FetchUser(context.Background(), "u1")
	require.ErrorIs(t, err, ErrUnknownDisplayStyle)
}
