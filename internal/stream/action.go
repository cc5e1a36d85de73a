package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TimeSpan is a [Start, End] window in seconds referenced by an edit action.
type TimeSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// EditAction is the structured change an assistant reply proposes.
type EditAction struct {
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Timestamps  []TimeSpan     `json:"timestamps,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

var ErrMissingActionType = errors.New("edit action has no type")

func (a EditAction) Validate() error {
	if strings.TrimSpace(a.Type) == "" {
		return ErrMissingActionType
	}
	for i, ts := range a.Timestamps {
		if ts.Start < 0 || ts.End < ts.Start {
			return fmt.Errorf("edit action timestamp %d: invalid span [%v, %v]", i, ts.Start, ts.End)
		}
	}
	return nil
}

var fencePattern = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// ExtractEditAction parses the first ```json fenced block of text. It
// reports false with a nil error when text has no such block.
func ExtractEditAction(text string) (EditAction, bool, error) {
	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return EditAction{}, false, nil
	}
	var action EditAction
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &action); err != nil {
		return EditAction{}, false, fmt.Errorf("parse fenced edit action: %w", err)
	}
	if err := action.Validate(); err != nil {
		return EditAction{}, false, err
	}
	return action, true, nil
}

// StripFence removes the first ```json block so only prose is displayed.
func StripFence(text string) string {
	loc := fencePattern.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
}
