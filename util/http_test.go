package util

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRobustHTTPClientRetries(t *testing.T) {
	assert := assert.New(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := RobustHTTPClient(nil).Get(srv.URL)
	assert.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(int32(2), hits.Load())
}

func TestRobustHTTPClientNoRetryOnClientError(t *testing.T) {
	assert := assert.New(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := RobustHTTPClient(nil).Get(srv.URL)
	assert.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)
	assert.Equal(int32(1), hits.Load())
}
