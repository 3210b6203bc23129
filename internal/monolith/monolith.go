// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/chainstream/internal/apperror"
	"github.com/fd1az/chainstream/internal/config"
	"github.com/fd1az/chainstream/internal/di"
	"github.com/fd1az/chainstream/internal/httpclient"
	"github.com/fd1az/chainstream/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	RPCClient() *rpc.Client
	EthClient() *ethclient.Client
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	container di.Container
}

// New dials the configured node over instrumented HTTP and builds the
// container holding the shared services.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	httpClient, err := httpclient.New(
		httpclient.WithName("eth-node"),
		httpclient.WithTimeout(cfg.Ethereum.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.Ethereum.HTTPURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(cfg.Ethereum.HTTPURL))
	}
	ethClient := ethclient.NewClient(rpcClient)

	container := di.NewContainer()

	// Register global services
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("rpcClient", rpcClient)
	container.Register("ethClient", ethClient)

	return &app{
		config:    cfg,
		logger:    log,
		rpcClient: rpcClient,
		ethClient: ethClient,
		container: container,
	}, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) RPCClient() *rpc.Client {
	return a.rpcClient
}

func (a *app) EthClient() *ethclient.Client {
	return a.ethClient
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all resources. The eth client shares the rpc connection.
func (a *app) Close() error {
	if a.rpcClient != nil {
		a.rpcClient.Close()
	}
	return nil
}
