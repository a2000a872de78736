// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package web_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/web"
)

func TestServer_StartStop(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "hello")
	})
	srv := web.NewServer(web.ServerConfig{Addr: "127.0.0.1:0", ReadTimeout: time.Second}, handler)

	errCh, err := srv.Start()
	require.NoError(t, err)
	require.NotEmpty(t, srv.Addr())

	_, err = srv.Start()
	assert.Error(t, err, "second start fails")

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "hello", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx), "stop is idempotent")

	_, open := <-errCh
	assert.False(t, open)
}

func TestServer_ListenFailure(t *testing.T) {
	srv := web.NewServer(web.ServerConfig{Addr: "256.0.0.1:http"}, http.NotFoundHandler())
	_, err := srv.Start()
	require.Error(t, err)
	assert.Empty(t, srv.Addr())
}
