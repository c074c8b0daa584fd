// Package mount defines the capability interfaces shared by mount
// implementations and their wrappers.
package mount

import (
	"context"

	"github.com/w1xm/starbook_interface/coord"
)

type Mount interface {
	Goto(ctx context.Context, ra coord.RA, dec coord.Dec) (string, error)
	Move(ctx context.Context, north, south, east, west bool) error
	Stop(ctx context.Context) error
	SetSpeed(ctx context.Context, level float64) error
	Align(ctx context.Context) error
	Home(ctx context.Context) error
	Start(ctx context.Context) error
}

type Reverter interface {
	Revert(ctx context.Context) error
}

type Waiter interface {
	WaitGoto(ctx context.Context) error
}
