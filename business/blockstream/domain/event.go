package domain

// Event is delivered to stream handlers. It is one of NewBlock, Reorg or
// Aborted.
type Event interface {
	Kind() string
	isEvent()
}

// NewBlock reports a header that extends the canonical chain.
type NewBlock struct {
	Header Header
}

// Reorg reports a switch to a competing chain. Reverted is newest first and
// New is oldest first; both hang off CommonAncestor.
type Reorg struct {
	CommonAncestor Header
	Reverted       []Header
	New            []Header
}

// Depth is the number of reverted blocks.
func (r Reorg) Depth() int {
	return len(r.Reverted)
}

// Head returns the new chain tip.
func (r Reorg) Head() Header {
	return r.New[len(r.New)-1]
}

// AbortReason says why a stream stopped.
type AbortReason string

const (
	ReasonCancelled          AbortReason = "cancelled"
	ReasonUnrecoverableReorg AbortReason = "unrecoverable reorg"
	ReasonRetriesExhausted   AbortReason = "retries exhausted"
	ReasonMalformedHeader    AbortReason = "malformed header"
	ReasonSourceExhausted    AbortReason = "source exhausted"
	ReasonHandlerFailed      AbortReason = "handler failed"
)

// Aborted is the terminal event of a stream.
type Aborted struct {
	Reason AbortReason
	Err    error
}

func (NewBlock) Kind() string { return "new_block" }
func (Reorg) Kind() string    { return "reorg" }
func (Aborted) Kind() string  { return "aborted" }

func (NewBlock) isEvent() {}
func (Reorg) isEvent()    {}
func (Aborted) isEvent()  {}
