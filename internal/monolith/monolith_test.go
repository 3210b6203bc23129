package monolith

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fd1az/chainstream/internal/config"
	"github.com/fd1az/chainstream/internal/di"
	"github.com/fd1az/chainstream/internal/logger"
)

type recordingModule struct {
	name     string
	order    *[]string
	startErr error
}

func (m *recordingModule) RegisterServices(c di.Container) error {
	*m.order = append(*m.order, "register:"+m.name)
	c.Register("module."+m.name, m.name)
	return nil
}

func (m *recordingModule) Startup(_ context.Context, mono Monolith) error {
	*m.order = append(*m.order, "start:"+m.name)
	if mono.Services().Get("module."+m.name) != m.name {
		return errors.New("service not registered")
	}
	return m.startErr
}

func newTestApp(t *testing.T) *app {
	t.Helper()

	// Answers every call with 0x1, enough for eth_chainId.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"})
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Ethereum.HTTPURL = srv.URL
	cfg.Ethereum.RequestTimeout = time.Second

	a, err := New(context.Background(), cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_Services(t *testing.T) {
	a := newTestApp(t)

	for _, name := range []string{"config", "logger", "rpcClient", "ethClient"} {
		if a.Services().Get(name) == nil {
			t.Errorf("%s not registered", name)
		}
	}

	id, err := a.EthClient().ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID: %v", err)
	}
	if id.Uint64() != 1 {
		t.Errorf("chain id = %s", id)
	}
}

func TestApp_ModuleLifecycle(t *testing.T) {
	a := newTestApp(t)

	var order []string
	boom := errors.New("boom")
	modules := []Module{
		&recordingModule{name: "a", order: &order},
		&recordingModule{name: "b", order: &order, startErr: boom},
		&recordingModule{name: "c", order: &order},
	}

	if err := a.RegisterModules(modules...); err != nil {
		t.Fatalf("RegisterModules: %v", err)
	}
	if err := a.StartModules(context.Background(), modules...); !errors.Is(err, boom) {
		t.Fatalf("StartModules err = %v", err)
	}

	want := []string{"register:a", "register:b", "register:c", "start:a", "start:b"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}
