package errors

import (
	"context"
	stderrors "errors"

	"github.com/vango-dev/vango-web/pkg/eval"
	"github.com/vango-dev/vango-web/pkg/hotreload"
	"github.com/vango-dev/vango-web/pkg/ingest"
	"github.com/vango-dev/vango-web/pkg/interp"
	"github.com/vango-dev/vango-web/pkg/protocol"
	"github.com/vango-dev/vango-web/pkg/registry"
	"github.com/vango-dev/vango-web/pkg/template"
)

// classes maps package sentinels to error codes. Order matters: the first
// match wins, and a desync wraps the failure that caused it.
var classes = []struct {
	target error
	code   string
}{
	{registry.ErrAllocation, "R020"},
	{registry.ErrUnknownNodeID, "R001"},
	{registry.ErrKindMismatch, "R002"},
	{registry.ErrIDInUse, "R003"},
	{registry.ErrRootID, "R004"},
	{registry.ErrIDOutOfRange, "R004"},
	{interp.ErrDetached, "R005"},
	{interp.ErrCycle, "R006"},
	{interp.ErrBadPath, "R007"},
	{template.ErrNotFound, "R007"},
	{template.ErrInvalid, "R007"},
	{template.ErrRootIndex, "R007"},
	{interp.ErrDesynced, "R008"},
	{protocol.ErrVarintOverflow, "R009"},
	{protocol.ErrAllocationTooLarge, "R009"},
	{protocol.ErrCollectionTooLarge, "R009"},
	{protocol.ErrNodeIDRange, "R009"},
	{protocol.ErrTrailingBytes, "R009"},
	{protocol.ErrFrameTooLarge, "R009"},
	{protocol.ErrInvalidFrameType, "R009"},
	{eval.ErrClosed, "R031"},
	{hotreload.ErrUnknownKind, "R041"},
	{ingest.ErrTooLarge, "R050"},
	{ingest.ErrNotFound, "R051"},
	{ingest.ErrInvalidID, "R051"},
}

// Classify converts err into a RenderError. RenderErrors are returned as is,
// known sentinels get their registered code, and anything else becomes an
// uncoded error in the closest category.
func Classify(err error) *RenderError {
	if err == nil {
		return nil
	}
	var re *RenderError
	if stderrors.As(err, &re) {
		return re
	}
	var se *eval.ScriptError
	if stderrors.As(err, &se) {
		return New("R030").WithDetail(se.Message).Wrap(err)
	}
	for _, c := range classes {
		if stderrors.Is(err, c.target) {
			return New(c.code).Wrap(err)
		}
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return &RenderError{Category: CategoryEval, Message: "Operation canceled", Wrapped: err}
	}
	return &RenderError{Message: "Unexpected error", Wrapped: err}
}
