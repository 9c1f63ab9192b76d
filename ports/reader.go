package ports

import (
	"context"

	"cellqc/domain/cycling"
)

// SeriesReader loads channel cycle histories from a source location,
// typically a directory of instrument exports.
type SeriesReader interface {
	ReadSeries(ctx context.Context, source string) ([]cycling.ChannelSeries, error)
}
