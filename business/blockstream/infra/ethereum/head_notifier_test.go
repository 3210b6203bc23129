package ethereum

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/fd1az/chainstream/internal/logger"
	"github.com/fd1az/chainstream/internal/wsconn"
)

// newHeadsServer accepts one eth_subscribe call and then pushes heads.
func newHeadsServer(t *testing.T, heads ...uint64) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		ctx := context.Background()
		var req subscribeRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return
		}
		if req.Method != "eth_subscribe" || len(req.Params) != 1 || req.Params[0] != "newHeads" {
			t.Errorf("unexpected request %+v", req)
			return
		}
		reply := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":"0xabc"}`, req.ID)
		if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
			return
		}

		for _, n := range heads {
			note := fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xabc","result":{"number":"0x%x","hash":"0x01"}}}`, n)
			if err := conn.Write(ctx, websocket.MessageText, []byte(note)); err != nil {
				return
			}
		}

		// Hold the connection until the client leaves.
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHeadNotifier_DeliversLatestHead(t *testing.T) {
	url := newHeadsServer(t, 5, 6, 7)

	cfg := wsconn.DefaultConfig(url, "test-heads")
	cfg.PingInterval = 0
	notifier := NewHeadNotifier(cfg, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hints, err := notifier.Notify(ctx)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	timeout := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case n := <-hints:
			if n > 7 {
				t.Fatalf("unexpected head %d", n)
			}
			done = n == 7
		case <-timeout:
			t.Fatal("timeout waiting for head 7")
		}
	}

	cancel()
	select {
	case _, ok := <-hints:
		for ok {
			_, ok = <-hints
		}
	case <-time.After(3 * time.Second):
		t.Fatal("hint channel not closed after cancel")
	}
}

func TestHeadNotifier_ConnectFailure(t *testing.T) {
	cfg := wsconn.DefaultConfig("ws://127.0.0.1:1", "test-heads")
	cfg.PingInterval = 0
	notifier := NewHeadNotifier(cfg, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := notifier.Notify(ctx); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}
