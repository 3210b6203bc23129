// Package di contains dependency injection tokens for the blockstream context.
package di

import (
	"github.com/fd1az/chainstream/business/blockstream/app"
	"github.com/fd1az/chainstream/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Stream     = di.NewToken[*app.Stream]("blockstream.Stream")
	Backfiller = di.NewToken[*app.Backfiller]("blockstream.Backfiller")
	Source     = di.NewToken[app.BlockSource]("blockstream.Source")
)

// Private dependency tokens - internal to blockstream module
var (
	Reporter = di.NewToken[app.Handler]("blockstream:reporter")
	Handler  = di.NewToken[app.Handler]("blockstream:handler")
)

// Helper functions for type-safe access
func GetStream(c di.ServiceRegistry) *app.Stream {
	return di.GetToken(c, Stream)
}

func GetBackfiller(c di.ServiceRegistry) *app.Backfiller {
	return di.GetToken(c, Backfiller)
}

func GetSource(c di.ServiceRegistry) app.BlockSource {
	return di.GetToken(c, Source)
}

func GetReporter(c di.ServiceRegistry) app.Handler {
	return di.GetToken(c, Reporter)
}

// GetHandler returns the handler the stream and backfiller deliver to: the
// reporter followed by the event log.
func GetHandler(c di.ServiceRegistry) app.Handler {
	return di.GetToken(c, Handler)
}
