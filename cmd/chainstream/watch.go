package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fd1az/chainstream/business/blockstream"
	"github.com/fd1az/chainstream/business/blockstream/app"
	blockstreamDI "github.com/fd1az/chainstream/business/blockstream/di"
	"github.com/fd1az/chainstream/pkg/ui"
)

// lifecycle is implemented by reporters that print a banner.
type lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var cliMode bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the chain head and report new blocks and reorgs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// TUI is the default, CLI is for debugging
			tuiMode := !cliMode

			rt, err := setup(cmd.Context(), opts, tuiMode)
			if err != nil {
				return err
			}
			defer rt.close()

			if tuiMode {
				return runTUI(cmd.Context(), rt)
			}
			return runCLI(cmd.Context(), rt)
		},
	}
	cmd.Flags().BoolVar(&cliMode, "cli", false, "Run in CLI mode with logs (no TUI)")
	return cmd
}

// watch starts the modules and runs the stream until ctx is done.
func watch(ctx context.Context, rt *runtime, started func(*app.Stream)) (err error) {
	ctx, span := rt.tracer.StartSpan(ctx, "chainstream.watch")
	defer func() { span.Finish(err) }()

	if err := rt.start(ctx); err != nil {
		return err
	}

	stream := blockstreamDI.GetStream(rt.mono.Services())
	span.SetAttributes(attribute.String("stream.id", stream.ID()))
	if rt.health != nil {
		rt.health.RegisterCheck("stream", blockstream.HealthCheck(stream))
	}
	if started != nil {
		started(stream)
	}

	rt.log.Info(ctx, "watching chain", "stream", stream.ID())
	if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runCLI(ctx context.Context, rt *runtime) error {
	rep := blockstreamDI.GetReporter(rt.mono.Services())
	if lc, ok := rep.(lifecycle); ok {
		_ = lc.Start(ctx)
		defer lc.Stop()
	}

	err := watch(ctx, rt, nil)
	rt.log.Info(ctx, "shutting down")
	return err
}

func runTUI(ctx context.Context, rt *runtime) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Channel to receive StartModulesMsg signal
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	// Create and start the TUI program IMMEDIATELY (shows welcome screen)
	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	// Run the stream in background (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		// Wait for welcome screen to complete (StartModulesMsg signal)
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		ui.Send(ui.StartupMsg{Step: "config", Status: "done"})
		ui.Send(ui.StartupMsg{Step: "ethereum", Status: "connecting", Message: rt.cfg.Ethereum.HTTPURL})

		err := watch(ctx, rt, func(s *app.Stream) {
			ui.Send(ui.ConnectionStatusMsg{Name: "Ethereum", Connected: true, Detail: rt.cfg.Ethereum.HTTPURL})
			ui.Send(ui.StartupMsg{Step: "stream", Status: "connecting"})
			go reportWindow(ctx, s)
		})
		if err != nil {
			ui.Send(ui.StartupMsg{Step: "ethereum", Status: "failed", Message: err.Error()})
			ui.Send(ui.ErrorMsg{Error: err})
		}
		errCh <- err
	}()

	// Run TUI (blocking) - shows immediately with welcome screen
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// The user quit; stop the stream and collect its result.
	cancel()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		return nil
	}
}

// reportWindow sends the window size to the TUI every few seconds.
func reportWindow(ctx context.Context, s *app.Stream) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ui.Send(ui.WindowMsg{Size: len(s.Window())})
		}
	}
}
