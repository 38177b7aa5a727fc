// Package desktop implements the clipboard and keyboard host interfaces on top
// of github.com/atotto/clipboard and github.com/micmonay/keybd_event.
//
// Both libraries block in system calls without accepting a context, so every
// call is run on its own goroutine and abandoned when ctx expires. An abandoned
// call may still complete later. Clipboard writes are therefore serialised and
// ticketed: a write abandoned by its caller never lands after a write issued
// later, so a restore issued after a timed-out paste always wins.
package desktop

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"

	"github.com/MrWong99/typofix/pkg/host"
)

// Clipboard is the system clipboard. Only text content is supported.
type Clipboard struct {
	read  func() (string, error)
	write func(string) error

	// issued numbers writes in call order; applied is the newest write that
	// reached the system clipboard.
	issued  atomic.Uint64
	mu      sync.Mutex
	applied uint64
}

var _ host.Clipboard = (*Clipboard)(nil)

// NewClipboard returns a [Clipboard]. It fails when the platform has no
// clipboard utility available (e.g. neither xclip nor xsel on Linux).
func NewClipboard() (*Clipboard, error) {
	if clipboard.Unsupported {
		return nil, fmt.Errorf("desktop: clipboard: %w", host.ErrUnsupported)
	}
	return &Clipboard{read: clipboard.ReadAll, write: clipboard.WriteAll}, nil
}

// Get returns the clipboard text. An empty clipboard yields nil.
func (c *Clipboard) Get(ctx context.Context) ([]byte, error) {
	s, err := call(ctx, func() (string, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.read()
	})
	if err != nil {
		return nil, fmt.Errorf("desktop: clipboard read: %w", err)
	}
	if s == "" {
		return nil, nil
	}
	return []byte(s), nil
}

// Set replaces the clipboard text. When ctx expires first the write may
// still complete in the background, but never after a later Set.
func (c *Clipboard) Set(ctx context.Context, data []byte) error {
	seq := c.issued.Add(1)
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, c.apply(seq, string(data))
	})
	if err != nil {
		return fmt.Errorf("desktop: clipboard write: %w", err)
	}
	return nil
}

// apply performs write number seq unless a newer write already landed.
func (c *Clipboard) apply(seq uint64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.applied {
		return nil
	}
	c.applied = seq
	return c.write(text)
}

// Keyboard simulates key chords with the platform's primary modifier (Command
// on macOS, Control elsewhere).
type Keyboard struct {
	mu    sync.Mutex
	kb    keybd_event.KeyBonding
	super bool

	// settle is slept after each chord so the target application can process
	// it before the next host call.
	settle time.Duration
}

var _ host.Keyboard = (*Keyboard)(nil)

// KeyboardOption configures a [Keyboard].
type KeyboardOption func(*Keyboard)

// WithSettleDelay sets the pause after each chord. Default: 60ms.
func WithSettleDelay(d time.Duration) KeyboardOption {
	return func(k *Keyboard) {
		if d >= 0 {
			k.settle = d
		}
	}
}

// NewKeyboard creates a [Keyboard]. On Linux the underlying uinput device needs
// a moment to register, so construction should happen at startup rather than
// on the correction path.
func NewKeyboard(opts ...KeyboardOption) (*Keyboard, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("desktop: keyboard: %w", err)
	}
	k := &Keyboard{
		kb:     kb,
		super:  runtime.GOOS == "darwin",
		settle: 60 * time.Millisecond,
	}
	for _, o := range opts {
		o(k)
	}
	return k, nil
}

// Press sends chord to the focused application.
func (k *Keyboard) Press(ctx context.Context, chord host.Chord) error {
	var key int
	switch chord {
	case host.ChordSelectAll:
		key = keybd_event.VK_A
	case host.ChordCopy:
		key = keybd_event.VK_C
	case host.ChordPaste:
		key = keybd_event.VK_V
	default:
		return fmt.Errorf("desktop: chord %v: %w", chord, host.ErrUnsupported)
	}

	_, err := call(ctx, func() (struct{}, error) {
		k.mu.Lock()
		defer k.mu.Unlock()
		k.kb.Clear()
		if k.super {
			k.kb.HasSuper(true)
		} else {
			k.kb.HasCTRL(true)
		}
		k.kb.SetKeys(key)
		err := k.kb.Launching()
		k.kb.HasSuper(false)
		k.kb.HasCTRL(false)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("desktop: press %v: %w", chord, err)
	}

	select {
	case <-time.After(k.settle):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on a separate goroutine and returns early when ctx is done.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
