package evasion

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/mimic/api/schemas"
)

// Action is a parsed action descriptor such as "click" or "type:hello".
type Action struct {
	Kind schemas.ActionKind
	Text string
}

// ParseAction parses "move", "click", "scroll" or "type:<text>". The text of
// a type action is taken verbatim and may be empty.
func ParseAction(s string) (Action, error) {
	kind, text, hasText := strings.Cut(s, ":")
	switch k := schemas.ActionKind(strings.ToLower(strings.TrimSpace(kind))); k {
	case schemas.ActionType:
		return Action{Kind: k, Text: text}, nil
	case schemas.ActionMove, schemas.ActionClick, schemas.ActionScroll:
		if hasText {
			return Action{}, fmt.Errorf("action %q does not take an argument", k)
		}
		return Action{Kind: k}, nil
	}
	return Action{}, fmt.Errorf("unknown action %q", s)
}

func (a Action) String() string {
	if a.Kind == schemas.ActionType {
		return fmt.Sprintf("type(%d chars)", len([]rune(a.Text)))
	}
	return string(a.Kind)
}
