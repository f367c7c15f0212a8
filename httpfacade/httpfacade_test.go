// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package httpfacade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/momentics/fiberpc/rpcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBeforeOpenFailsWithNotOpened(t *testing.T) {
	c := New("http://example.invalid", nil)
	_, err := c.Get(context.Background(), "/x").Get()
	assert.True(t, rpcerr.Is(err, rpcerr.KindNotOpened))
}

func TestGetRoundTripAfterOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	require.NoError(t, c.Open(0, 10*time.Millisecond, 50*time.Millisecond))

	body, err := c.Get(context.Background(), "/ping").Get()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))
}

func TestCloseReturnsToNotOpened(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	require.NoError(t, c.Open(0, 10*time.Millisecond, 50*time.Millisecond))
	c.Close()

	_, err := c.Get(context.Background(), "/ping").Get()
	assert.True(t, rpcerr.Is(err, rpcerr.KindNotOpened))
}
