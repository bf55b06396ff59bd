// Package areastatus owns the lifecycle of a ContentArea:
//
//	pending → extracting → analyzing → formatting → ready
//
// with error reachable from every stage. Every stage asks the Machine before
// it starts, so the stored status is the single answer to "may this stage
// run now".
package areastatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/types"
)

// ErrInvalidTransition is wrapped by every rejected transition.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists the allowed targets per status. Moves out of error
// into analyzing or formatting are further restricted by FailedStage.
var transitions = map[types.AreaStatus][]types.AreaStatus{
	types.AreaPending:    {types.AreaExtracting, types.AreaError},
	types.AreaExtracting: {types.AreaExtracting, types.AreaAnalyzing, types.AreaError},
	types.AreaAnalyzing:  {types.AreaExtracting, types.AreaAnalyzing, types.AreaFormatting, types.AreaError},
	types.AreaFormatting: {types.AreaReady, types.AreaError},
	types.AreaReady:      {types.AreaExtracting},
	types.AreaError:      {types.AreaExtracting, types.AreaAnalyzing, types.AreaFormatting},
}

// Allowed reports whether an area in `from` (that failed during failedStage,
// if from is error) may move to `to`.
func Allowed(from, to, failedStage types.AreaStatus) bool {
	ok := false
	for _, s := range transitions[from] {
		if s == to {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	if from == types.AreaError && (to == types.AreaAnalyzing || to == types.AreaFormatting) {
		return failedStage == types.AreaAnalyzing || failedStage == types.AreaFormatting
	}
	return true
}

// CanIngest reports whether extraction may (re)start.
func CanIngest(a *types.ContentArea) bool {
	return Allowed(a.Status, types.AreaExtracting, a.FailedStage)
}

// CanAnalyze reports whether the analyzer may run. Pages must also exist;
// that is checked by the analyzer itself.
func CanAnalyze(a *types.ContentArea) bool {
	return Allowed(a.Status, types.AreaAnalyzing, a.FailedStage)
}

// CanCommit reports whether a theme set may be committed.
func CanCommit(a *types.ContentArea) bool {
	return Allowed(a.Status, types.AreaFormatting, a.FailedStage)
}

// Machine applies transitions to stored areas.
type Machine struct {
	areas  store.Areas
	logger *slog.Logger
}

// New creates a Machine over the given area store.
func New(areas store.Areas, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{areas: areas, logger: logger}
}

// Transition moves area id to status `to`, applying upd in the same write,
// and returns the area as stored afterwards. Leaving error clears the
// recorded failure. A concurrent status change between read and write is
// reported as fault.InvalidState.
func (m *Machine) Transition(ctx context.Context, id string, to types.AreaStatus, upd types.AreaUpdate) (*types.ContentArea, error) {
	op := "areastatus." + string(to)

	a, err := m.areas.GetArea(ctx, id)
	if err != nil {
		return nil, classifyStoreErr(op, err)
	}
	if !Allowed(a.Status, to, a.FailedStage) {
		return nil, &fault.Error{
			Kind: fault.InvalidState,
			Op:   op,
			Err:  fmt.Errorf("area %s: %s -> %s: %w", id, a.Status, to, ErrInvalidTransition),
		}
	}

	if a.Status == types.AreaError && to != types.AreaError {
		var none types.AreaStatus
		empty := ""
		upd.FailedStage = &none
		upd.LastError = &empty
	}

	from := a.Status
	if err := m.areas.CompareAndSetStatus(ctx, id, from, to, upd); err != nil {
		return nil, classifyStoreErr(op, err)
	}

	upd.Status = &to
	upd.Apply(a)
	m.logger.Debug("area status changed", "area_id", id, "from", from, "to", to)
	return a, nil
}

// Fail moves the area to error, recording the stage that was running and
// the cause. The stored status must still be `stage`; otherwise another
// invocation has taken over and the area is left alone.
func (m *Machine) Fail(ctx context.Context, id string, stage types.AreaStatus, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	errStatus := types.AreaError
	upd := types.AreaUpdate{FailedStage: &stage, LastError: &msg}

	err := m.areas.CompareAndSetStatus(ctx, id, stage, errStatus, upd)
	if errors.Is(err, store.ErrStatusConflict) {
		m.logger.Warn("area moved on before failure was recorded", "area_id", id, "stage", stage, "error", msg)
		return nil
	}
	if err != nil {
		return classifyStoreErr("areastatus.error", err)
	}
	m.logger.Warn("area failed", "area_id", id, "stage", stage, "kind", fault.KindOf(cause), "error", msg)
	return nil
}

func classifyStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fault.Wrap(fault.NotFound, op, err)
	case errors.Is(err, store.ErrStatusConflict):
		return fault.Wrap(fault.InvalidState, op, err)
	default:
		return fault.Wrap(fault.Persistence, op, err)
	}
}
