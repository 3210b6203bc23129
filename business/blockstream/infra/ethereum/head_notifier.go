package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fd1az/chainstream/internal/apperror"
	"github.com/fd1az/chainstream/internal/logger"
	"github.com/fd1az/chainstream/internal/wsconn"
)

// subscribeRequest is the eth_subscribe call for new heads.
type subscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// wsMessage covers both the subscribe reply and the notifications.
type wsMessage struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Number hexutil.Uint64 `json:"number"`
		} `json:"result"`
	} `json:"params,omitempty"`
}

// HeadNotifier implements app.HeadNotifier with an eth_subscribe("newHeads")
// subscription. It only carries hints; headers are always fetched through
// the block source.
type HeadNotifier struct {
	config wsconn.Config
	logger logger.LoggerInterface

	nextID atomic.Uint64
}

// NewHeadNotifier creates a notifier for the WebSocket endpoint in cfg.
func NewHeadNotifier(cfg wsconn.Config, log logger.LoggerInterface) *HeadNotifier {
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	return &HeadNotifier{config: cfg, logger: log}
}

// Notify connects and subscribes. The returned channel holds at most one
// pending hint; newer heads replace older ones. It is closed when ctx is done.
func (n *HeadNotifier) Notify(ctx context.Context) (<-chan uint64, error) {
	client, err := wsconn.New(n.config)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
	}

	hints := make(chan uint64, 1)

	client.OnMessage(func(ctx context.Context, msg []byte) {
		n.handleMessage(ctx, msg, hints)
	})

	var subscribed sync.WaitGroup
	subscribed.Add(1)
	var once sync.Once
	client.OnStateChange(func(state wsconn.State, err error) {
		if state != wsconn.StateConnected {
			return
		}
		// Runs on the initial connect and after every reconnect; a new
		// connection carries no subscriptions.
		go func() {
			if err := n.subscribe(ctx, client); err != nil {
				n.logger.Warn(ctx, "newHeads subscribe failed", "error", err)
			}
			once.Do(subscribed.Done)
		}()
	})

	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext(n.config.URL))
	}
	subscribed.Wait()

	go func() {
		<-ctx.Done()
		// Close waits for the read loop, so nothing sends on hints after it.
		_ = client.Close()
		close(hints)
	}()

	return hints, nil
}

func (n *HeadNotifier) subscribe(ctx context.Context, client *wsconn.Client) error {
	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      n.nextID.Add(1),
		Method:  "eth_subscribe",
		Params:  []any{"newHeads"},
	}
	if err := client.SendJSON(ctx, req); err != nil {
		return apperror.New(apperror.CodeEthereumSubscribeFailed, apperror.WithCause(err), apperror.WithContext("newHeads"))
	}
	return nil
}

func (n *HeadNotifier) handleMessage(ctx context.Context, msg []byte, hints chan uint64) {
	var m wsMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		n.logger.Warn(ctx, "undecodable websocket message", "error", err)
		return
	}

	switch {
	case m.Error != nil:
		n.logger.Error(ctx, "newHeads subscription rejected",
			"code", m.Error.Code, "error", errors.New(m.Error.Message))
	case m.ID != nil:
		n.logger.Info(ctx, "subscribed to new heads", "subscription", string(m.Result))
	case m.Method == "eth_subscription" && m.Params != nil:
		number := uint64(m.Params.Result.Number)
		// Keep only the newest hint.
		select {
		case <-hints:
		default:
		}
		select {
		case hints <- number:
		default:
		}
		n.logger.Debug(ctx, "new head notification", "number", number)
	}
}
