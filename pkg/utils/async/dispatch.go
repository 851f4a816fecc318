package async

import (
	"context"
	"runtime/debug"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
)

// Dispatch executes a handler function asynchronously with panic recovery.
// The handler gets a context that keeps the values of ctx (logger, request
// ID, clock) but is not cancelled when the originating request ends.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	newCtx := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				errs.Handle(newCtx, goerr.New("panic in async handler",
					goerr.V("recover", r),
					goerr.V("stack", string(stack))))
			}
		}()

		if err := handler(newCtx); err != nil {
			errs.Handle(newCtx, err)
		}
	}()
}
