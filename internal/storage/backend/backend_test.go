package backend

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stores, cleanup, err := Open(context.Background(), Config{}, logger)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "memory", stores.Kind)
	assert.NotNil(t, stores.Ledger)
	assert.NotNil(t, stores.Prices)
	assert.Same(t, stores.Ledger, stores.Groups, "memory backend shares one store")
}

func TestOpen_BadPostgresDSN(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, _, err := Open(context.Background(), Config{PostgresDSN: "::not a dsn::"}, logger)
	assert.Error(t, err)
}
