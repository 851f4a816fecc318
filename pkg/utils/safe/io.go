package safe

import (
	"context"
	"io"

	"github.com/secmon-lab/tollgate/pkg/utils/logging"
)

// Close closes c and logs a failure instead of returning it.
func Close(ctx context.Context, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", logging.ErrAttr(err))
	}
}

// Write writes data to w and logs a failure. Used after response headers
// have been sent, when nothing else can be done about the error.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Error("Failed to write", logging.ErrAttr(err))
	}
}
