package clipboard

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/typofix/pkg/host"
)

// DefaultCopyWait is how long [CopyAll] waits for the copy chord to populate
// the clipboard.
const DefaultCopyWait = 250 * time.Millisecond

const pollInterval = 10 * time.Millisecond

// CopyAll selects all text in the focused element and copies it through s.
// The clipboard is cleared first so stale contents can never be mistaken for
// field text. A nil result with a nil error means nothing was copied within
// wait. The element's text is left selected.
func CopyAll(ctx context.Context, s *Scope, kb host.Keyboard, wait time.Duration) ([]byte, error) {
	if wait <= 0 {
		wait = DefaultCopyWait
	}
	if err := s.Set(ctx, nil); err != nil {
		return nil, fmt.Errorf("clipboard: clear: %w", err)
	}
	for _, chord := range []host.Chord{host.ChordSelectAll, host.ChordCopy} {
		if err := kb.Press(ctx, chord); err != nil {
			return nil, fmt.Errorf("clipboard: press %s: %w", chord, err)
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		data, err := s.Get(ctx)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			return data, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-tick.C:
		}
	}
}
