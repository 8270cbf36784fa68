package rpcdebug_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"

	uctx "github.com/arcology-network/unbase/context"
	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/rpcdebug"
	"github.com/arcology-network/unbase/slab"
)

func newTestServer(t *testing.T) (*rpcdebug.Server, *slab.Slab, *uctx.Context) {
	t.Helper()
	s := slab.New(memo.NewSlabID([]byte(t.Name())), db.NewMemDB())
	s.Start()
	c := uctx.NewContext(s)
	t.Cleanup(func() {
		c.Close()
		_ = s.Close()
	})
	return rpcdebug.NewServer(s, c), s, c
}

func TestHealthReturns200(t *testing.T) {
	srv, _, _ := newTestServer(t)
	require.NoError(t, srv.Start("tcp://127.0.0.1:0"))
	defer srv.Stop(context.Background())

	addr := waitListening(t, srv)
	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusReflectsRootIndexBootstrap(t *testing.T) {
	srv, _, c := newTestServer(t)
	require.NoError(t, srv.Start("tcp://127.0.0.1:0"))
	defer srv.Stop(context.Background())

	_, err := c.BootstrapRootIndex(context.Background())
	require.NoError(t, err)

	addr := waitListening(t, srv)
	resp, err := http.Get("http://" + addr + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, true, got["has_root_index"])
}

func TestHeadStreamDeliversIndexUpdates(t *testing.T) {
	srv, _, c := newTestServer(t)
	require.NoError(t, srv.Start("tcp://127.0.0.1:0"))
	defer srv.Stop(context.Background())

	addr := waitListening(t, srv)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/heads", nil)
	require.NoError(t, err)
	defer conn.Close()

	_, err = c.BootstrapRootIndex(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	require.NotEmpty(t, msg["memo_ids"])
}

func waitListening(t *testing.T, srv *rpcdebug.Server) string {
	t.Helper()
	return srv.Addr()
}
