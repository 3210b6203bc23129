package ui

import (
	"time"

	"github.com/shopspring/decimal"
)

// Message types for TUI updates

// BlockMsg is sent when the stream accepts a block.
type BlockMsg struct {
	Number      uint64
	Hash        string
	Timestamp   time.Time
	GasUsedPct  float64
	BaseFeeGwei decimal.Decimal
	NextFeeGwei decimal.Decimal
	Reorged     bool // part of the new branch of a reorg
}

// ReorgMsg is sent when the stream switches branches.
type ReorgMsg struct {
	Depth    int    // blocks reverted
	Added    int    // blocks of the new branch
	Ancestor uint64 // common ancestor number
	OldHead  string
	NewHead  string
}

// AbortedMsg is sent once when the stream stops for good.
type AbortedMsg struct {
	Reason string
	Err    error
}

// FeeMsg is sent with the fee figures for the next block.
type FeeMsg struct {
	Fork        string
	BlockNumber uint64
	BaseFee     decimal.Decimal
	NextBaseFee decimal.Decimal
	BlobBaseFee decimal.Decimal
	TipCap      decimal.Decimal
	MaxFee      decimal.Decimal
}

// WindowMsg reports the size of the stream's chain window.
type WindowMsg struct {
	Size int
}

// ConnectionStatusMsg is sent when connection status changes.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Detail    string
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// WelcomeCompleteMsg signals the welcome screen is done (timeout or keypress).
type WelcomeCompleteMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step    string // Current step name
	Status  string // "connecting", "connected", "failed"
	Message string // Optional message
}
