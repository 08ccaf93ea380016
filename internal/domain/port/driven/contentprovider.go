package driven

import (
	"context"
	"time"
)

// ContentProvider supplies the text to deliver for a given date. Read-only;
// ok is false when the provider has nothing for that date.
type ContentProvider interface {
	ContentForDate(ctx context.Context, date time.Time) (text string, ok bool, err error)
}
