// internal/humanoid/keyboard.go
package humanoid

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// confusableKeys is the pool wrong keystrokes are drawn from.
const confusableKeys = "qwertyuiop[]asdfghjkl;zxcvbnm,./"

const (
	typoPauseMin     = 100 * time.Millisecond
	typoPauseMax     = 300 * time.Millisecond
	hesitationChance = 0.1
	hesitationMin    = 500 * time.Millisecond
	hesitationMax    = 1500 * time.Millisecond
)

// KeyEvent is a single keystroke followed by the pause that comes after it.
// An empty Key is a pure pause.
type KeyEvent struct {
	Key   string        `json:"key"`
	Pause time.Duration `json:"pause"`
}

// PlanTyping builds the keystroke sequence for text. Each rune may be preceded
// by a typo (a confusable key, a short pause, a backspace); the intended rune
// is followed by a Gaussian delay and, occasionally, an extra hesitation.
func PlanTyping(rng *rand.Rand, profile Profile, text string) []KeyEvent {
	events := make([]KeyEvent, 0, len(text)*2)
	for _, r := range text {
		if rng.Float64() < profile.ErrorRate {
			wrong := confusableKeys[rng.Intn(len(confusableKeys))]
			events = append(events,
				KeyEvent{Key: string(wrong), Pause: uniformDuration(rng, typoPauseMin, typoPauseMax)},
				KeyEvent{Key: string(KeyBackspace)},
			)
		}
		events = append(events, KeyEvent{Key: string(r), Pause: profile.KeyDelay(rng)})
		if rng.Float64() < hesitationChance {
			events = append(events, KeyEvent{Pause: uniformDuration(rng, hesitationMin, hesitationMax)})
		}
	}
	return events
}

// Type focuses the element matching selector with a click, then replays a
// typing plan for text through the executor.
func (h *Humanoid) Type(ctx context.Context, selector, text string) error {
	if err := h.Click(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to focus '%s': %w", selector, err)
	}

	h.mu.Lock()
	plan := PlanTyping(h.rng, h.profile, text)
	h.mu.Unlock()

	for _, ev := range plan {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ev.Key != "" {
			if err := h.executor.SendKeys(ctx, ev.Key); err != nil {
				return fmt.Errorf("humanoid: failed to send key %q: %w", ev.Key, err)
			}
		}
		if ev.Pause > 0 {
			if err := h.executor.Sleep(ctx, ev.Pause); err != nil {
				return err
			}
		}
	}
	return nil
}
