package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownStopsServerAndFlushesTracing(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	flushed := false
	tracing := func(ctx context.Context) error {
		flushed = true
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	}

	var logs bytes.Buffer
	shutdown(srv, time.Second, tracing, zerolog.New(&logs))

	select {
	case err := <-served:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("server still serving after shutdown")
	}
	assert.True(t, flushed)
	assert.Empty(t, logs.String())
}

func TestShutdownLogsTracingError(t *testing.T) {
	srv := &http.Server{}
	var logs bytes.Buffer

	shutdown(srv, time.Second, func(context.Context) error { return errors.New("exporter gone") }, zerolog.New(&logs))

	assert.Contains(t, logs.String(), "tracer shutdown error")
	assert.Contains(t, logs.String(), "exporter gone")
}
