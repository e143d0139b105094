package async

import (
	"context"
	"fmt"

	"github.com/dkessler/corelang/internal/diag"
)

// JoinAll waits for every handle to complete, per spec.md §4.14:
// completes only once all members are Ready, caps the number of
// concurrent members, and propagates the first hard error encountered.
// maxConcurrent <= 0 means unbounded.
func JoinAll(ctx context.Context, handles []*JoinHandle, maxConcurrent int) ([]any, error) {
	if len(handles) == 0 {
		return nil, diag.New(diag.KindResourceExhausted, diag.ASY001, "join_all: called with zero members").
			WithCategory("JoinAllEmptyInput")
	}
	if maxConcurrent > 0 && len(handles) > maxConcurrent {
		return nil, diag.New(diag.KindResourceExhausted, diag.SEC006,
			fmt.Sprintf("join_all: %d members exceeds max_concurrent_ops=%d", len(handles), maxConcurrent)).
			WithCategory("JoinAllOversizeInput")
	}

	results := make([]any, len(handles))
	var firstErr error
	for i, h := range handles {
		v, err := h.Join(ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		results[i] = v
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
