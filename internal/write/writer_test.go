package write

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/typofix/internal/profile"
	"github.com/MrWong99/typofix/pkg/host"
	"github.com/MrWong99/typofix/pkg/host/mock"
	"github.com/MrWong99/typofix/pkg/types"
)

var target = types.FocusTarget{AppID: "com.apple.TextEdit", Name: "TextEdit"}

func directExtraction() types.ExtractionResult {
	return types.ExtractionResult{
		Text:           "I has a appl",
		Selection:      types.Range{Start: 0, End: 12},
		FieldText:      "I has a appl",
		ElementID:      "field",
		SourceStrategy: types.AccessibilityDirect,
		Target:         target,
	}
}

func clipboardExtraction() types.ExtractionResult {
	return types.ExtractionResult{
		Text:           "I has a appl",
		Selection:      types.Range{Start: 13, End: 25},
		FieldText:      "Hello there. I has a appl",
		SourceStrategy: types.ClipboardSimulatedPaste,
		Target:         target,
	}
}

func electron() profile.Profile {
	return profile.Profile{Name: "Slack", PreferredStrategy: types.ClipboardSimulatedPaste}
}

func strategies(rep Report) []types.StrategyKind {
	out := make([]types.StrategyKind, len(rep.Attempts))
	for i, a := range rep.Attempts {
		out[i] = a.Strategy
	}
	return out
}

func TestWrite_Direct(t *testing.T) {
	t.Parallel()
	acc := &mock.Accessibility{}
	clip := &mock.Clipboard{Data: []byte("user data")}
	w := New(acc, &mock.Keyboard{}, &mock.Scripting{})

	rep, err := w.Write(context.Background(), directExtraction(), profile.Default(), "I have an apple", clip)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if rep.Strategy != types.AccessibilityDirect {
		t.Errorf("Strategy = %v, want accessibility_direct", rep.Strategy)
	}
	want := []mock.WriteCall{{Element: host.Element{ID: "field"}, Range: types.Range{Start: 0, End: 12}, Original: "I has a appl", Text: "I have an apple"}}
	if diff := cmp.Diff(want, acc.Writes()); diff != "" {
		t.Errorf("WriteValue calls mismatch (-want +got):\n%s", diff)
	}
	if clip.Touched() {
		t.Error("direct write touched the clipboard")
	}
}

func TestWrite_NoDirectWriteStartsAtClipboard(t *testing.T) {
	t.Parallel()
	acc := &mock.Accessibility{}
	clip := &mock.Clipboard{Data: []byte("user data")}
	var pasted string
	kb := &mock.Keyboard{OnPress: func(ctx context.Context, c host.Chord) error {
		if c == host.ChordPaste {
			pasted = string(clip.Contents())
		}
		return nil
	}}
	w := New(acc, kb, &mock.Scripting{}, WithPasteSettle(0))

	prof := profile.Default()
	prof.SupportsDirectWrite = false
	rep, err := w.Write(context.Background(), directExtraction(), prof, "I have an apple", clip)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if len(acc.Writes()) != 0 {
		t.Errorf("AccessibilityDirect attempted %d times, want 0", len(acc.Writes()))
	}
	if diff := cmp.Diff([]types.StrategyKind{types.ClipboardSimulatedPaste}, strategies(rep)); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]types.Range{{Start: 0, End: 12}}, acc.SelectCalls); diff != "" {
		t.Errorf("Select calls mismatch (-want +got):\n%s", diff)
	}
	if pasted != "I have an apple" {
		t.Errorf("pasted %q, want %q", pasted, "I have an apple")
	}
	if got := string(clip.Contents()); got != "user data" {
		t.Errorf("clipboard = %q, want restored", got)
	}
}

// fieldKeyboard emulates a focused field holding field: the copy chord fills
// clip with it and the paste chord records what was pasted.
func fieldKeyboard(clip *mock.Clipboard, field string, pasted *string) *mock.Keyboard {
	return &mock.Keyboard{OnPress: func(ctx context.Context, c host.Chord) error {
		switch c {
		case host.ChordCopy:
			return clip.Set(ctx, []byte(field))
		case host.ChordPaste:
			*pasted = string(clip.Contents())
		}
		return nil
	}}
}

func TestWrite_ClipboardExtractionPastesWholeField(t *testing.T) {
	t.Parallel()
	clip := &mock.Clipboard{Data: []byte("user data")}
	var pasted string
	kb := fieldKeyboard(clip, "Hello there. I has a appl", &pasted)
	w := New(&mock.Accessibility{}, kb, nil, WithPasteSettle(0))

	rep, err := w.Write(context.Background(), clipboardExtraction(), electron(), "I have an apple", clip)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if rep.Strategy != types.ClipboardSimulatedPaste {
		t.Errorf("Strategy = %v", rep.Strategy)
	}
	if want := "Hello there. I have an apple"; pasted != want {
		t.Errorf("pasted %q, want %q", pasted, want)
	}
	if diff := cmp.Diff([]host.Chord{host.ChordSelectAll, host.ChordCopy, host.ChordPaste}, kb.Pressed()); diff != "" {
		t.Errorf("chords mismatch (-want +got):\n%s", diff)
	}
	if got := string(clip.Contents()); got != "user data" {
		t.Errorf("clipboard = %q, want restored", got)
	}
}

func TestWrite_EscalatesInOrder(t *testing.T) {
	t.Parallel()
	acc := &mock.Accessibility{WriteErr: errors.New("AXValue is read-only")}
	clip := &mock.Clipboard{Data: []byte("user data")}
	kb := &mock.Keyboard{OnPress: func(ctx context.Context, c host.Chord) error {
		if c == host.ChordPaste {
			return errors.New("paste blocked")
		}
		return nil
	}}
	script := &mock.Scripting{Value: "I has a appl"}
	w := New(acc, kb, script, WithPasteSettle(0))

	var hooked []types.StrategyKind
	w.onAttempt = func(a Attempt) { hooked = append(hooked, a.Strategy) }

	rep, err := w.Write(context.Background(), directExtraction(), profile.Default(), "I have an apple", clip)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	want := []types.StrategyKind{types.AccessibilityDirect, types.ClipboardSimulatedPaste, types.ScriptedAutomation}
	if diff := cmp.Diff(want, strategies(rep)); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, hooked); diff != "" {
		t.Errorf("hook mismatch (-want +got):\n%s", diff)
	}
	if rep.Strategy != types.ScriptedAutomation {
		t.Errorf("Strategy = %v, want scripted_automation", rep.Strategy)
	}
	if diff := cmp.Diff([]string{"I have an apple"}, script.Values()); diff != "" {
		t.Errorf("scripted values mismatch (-want +got):\n%s", diff)
	}
	if len(acc.Writes()) != 1 {
		t.Errorf("direct strategy attempted %d times, want exactly once", len(acc.Writes()))
	}
	if got := string(clip.Contents()); got != "user data" {
		t.Errorf("clipboard = %q, want restored after failed paste", got)
	}
}

func TestWrite_AllStrategiesFail(t *testing.T) {
	t.Parallel()
	acc := &mock.Accessibility{WriteErr: errors.New("denied"), SelectErr: errors.New("denied")}
	script := &mock.Scripting{Value: "I has a appl", Err: errors.New("not allowed assistive access")}
	w := New(acc, &mock.Keyboard{}, script, WithPasteSettle(0))

	rep, err := w.Write(context.Background(), directExtraction(), profile.Default(), "I have an apple", &mock.Clipboard{})
	if !errors.Is(err, types.ErrWriteFailed) {
		t.Fatalf("Write() error = %v, want ErrWriteFailed", err)
	}
	if len(rep.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(rep.Attempts))
	}
	if errors.Is(err, host.ErrFieldChanged) {
		t.Errorf("Write() error = %v, want plain strategy failures", err)
	}
	for _, a := range rep.Attempts {
		if a.Err == nil {
			t.Errorf("attempt %v has no error", a.Strategy)
		}
	}
}

func TestWrite_MissingHostsEscalate(t *testing.T) {
	t.Parallel()
	script := &mock.Scripting{Value: "Hello there. I has a appl"}
	w := New(nil, nil, script)

	rep, err := w.Write(context.Background(), clipboardExtraction(), electron(), "I have an apple", nil)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if rep.Strategy != types.ScriptedAutomation {
		t.Errorf("Strategy = %v, want scripted_automation", rep.Strategy)
	}
	if !errors.Is(rep.Attempts[0].Err, host.ErrUnsupported) {
		t.Errorf("first attempt error = %v, want ErrUnsupported", rep.Attempts[0].Err)
	}
}

func TestWrite_Timeout(t *testing.T) {
	t.Parallel()
	acc := &mock.Accessibility{WriteFunc: func(ctx context.Context, _ host.Element, _ types.Range, _, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	script := &mock.Scripting{}
	w := New(acc, nil, script)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Write(ctx, directExtraction(), profile.Default(), "I have an apple", nil)
	if !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("Write() error = %v, want ErrTimeout", err)
	}
	if len(script.Values()) != 0 {
		t.Error("escalated after the deadline expired")
	}
}

func TestWrite_StaleSelection(t *testing.T) {
	t.Parallel()
	ext := directExtraction()
	ext.Selection = types.Range{Start: 0, End: 99}
	_, err := New(&mock.Accessibility{}, nil, nil).Write(context.Background(), ext, profile.Default(), "x", nil)
	if !errors.Is(err, types.ErrWriteFailed) {
		t.Fatalf("Write() error = %v, want ErrWriteFailed", err)
	}
}

func TestWrite_ChangedFieldStopsEscalation(t *testing.T) {
	t.Parallel()
	acc := &mock.Accessibility{WriteErr: fmt.Errorf("range 0..12: %w", host.ErrFieldChanged)}
	clip := &mock.Clipboard{Data: []byte("user data")}
	kb := &mock.Keyboard{}
	script := &mock.Scripting{Value: "I has a appl"}
	w := New(acc, kb, script, WithPasteSettle(0))

	rep, err := w.Write(context.Background(), directExtraction(), profile.Default(), "I have an apple", clip)
	if !errors.Is(err, types.ErrWriteFailed) || !errors.Is(err, host.ErrFieldChanged) {
		t.Fatalf("Write() error = %v, want ErrWriteFailed wrapping ErrFieldChanged", err)
	}
	if diff := cmp.Diff([]types.StrategyKind{types.AccessibilityDirect}, strategies(rep)); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
	if len(kb.Pressed()) != 0 || len(script.Values()) != 0 {
		t.Errorf("escalated after the field changed: chords %v, scripted %q", kb.Pressed(), script.Values())
	}
	if clip.Touched() {
		t.Error("clipboard touched after the field changed")
	}
}

func TestWrite_ClipboardPasteAbortsOnChangedField(t *testing.T) {
	t.Parallel()
	clip := &mock.Clipboard{Data: []byte("user data")}
	var pasted string
	kb := fieldKeyboard(clip, "Hello there. I has a apple pie", &pasted)
	script := &mock.Scripting{Value: "Hello there. I has a apple pie"}
	w := New(&mock.Accessibility{}, kb, script, WithPasteSettle(0))

	rep, err := w.Write(context.Background(), clipboardExtraction(), electron(), "I have an apple", clip)
	if !errors.Is(err, host.ErrFieldChanged) {
		t.Fatalf("Write() error = %v, want ErrFieldChanged", err)
	}
	if diff := cmp.Diff([]types.StrategyKind{types.ClipboardSimulatedPaste}, strategies(rep)); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
	if pasted != "" {
		t.Errorf("pasted %q over a changed field", pasted)
	}
	if len(script.Values()) != 0 {
		t.Errorf("scripted write after the field changed: %q", script.Values())
	}
	if got := string(clip.Contents()); got != "user data" {
		t.Errorf("clipboard = %q, want restored", got)
	}
}

func TestWrite_ClipboardPasteEmptyCopyEscalates(t *testing.T) {
	t.Parallel()
	clip := &mock.Clipboard{Data: []byte("user data")}
	script := &mock.Scripting{Value: "Hello there. I has a appl"}
	w := New(&mock.Accessibility{}, &mock.Keyboard{}, script, WithPasteSettle(0), WithCopyWait(20*time.Millisecond))

	rep, err := w.Write(context.Background(), clipboardExtraction(), electron(), "I have an apple", clip)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if rep.Strategy != types.ScriptedAutomation {
		t.Errorf("Strategy = %v, want scripted_automation", rep.Strategy)
	}
	if diff := cmp.Diff([]string{"Hello there. I have an apple"}, script.Values()); diff != "" {
		t.Errorf("scripted values mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_ScriptedAbortsOnChangedField(t *testing.T) {
	t.Parallel()
	script := &mock.Scripting{Value: "Hello there. I has a appl and more"}
	w := New(nil, nil, script)

	_, err := w.Write(context.Background(), clipboardExtraction(), electron(), "I have an apple", nil)
	if !errors.Is(err, host.ErrFieldChanged) {
		t.Fatalf("Write() error = %v, want ErrFieldChanged", err)
	}
	if len(script.Values()) != 0 {
		t.Errorf("scripted write over a changed field: %q", script.Values())
	}
}
