package redisclient

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectPings(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, mr.Addr(), client.Options().Addr)
	assert.Equal(t, 10, client.Options().PoolSize)
}

func TestConnectUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), ClientConfig{Addr: addr})
	assert.Error(t, err)
}

func TestConnectRequiresAddr(t *testing.T) {
	_, err := Connect(context.Background(), ClientConfig{})
	assert.Error(t, err)
}
