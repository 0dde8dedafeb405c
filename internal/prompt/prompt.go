// Package prompt assembles the generation prompt from heterogeneous
// context: the user profile, retrieved conversation turns, and the
// current query.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/concierge-ai/concierge/internal/profile"
	"github.com/concierge-ai/concierge/internal/vector"
)

// ErrMalformedPreferences indicates the stored preferences are missing
// a required key or a required key is not a list of strings.
var ErrMalformedPreferences = errors.New("malformed preferences")

const (
	// maxRenderedTurns bounds how many retrieved turns reach the prompt
	// even when retrieval returned more.
	maxRenderedTurns = 3

	// previewLength bounds each rendered turn document.
	previewLength = 200

	// noConversationsMarker is rendered when the user has no relevant
	// history; the section is never left blank.
	noConversationsMarker = "No previous conversations"
)

// Assemble builds the deterministic generation prompt. It is a pure
// function of its inputs: same user, turns, and query always yield the
// same string.
//
// The user's preferences must contain dietary_requirements and
// food_preferences as lists of strings; anything else fails with
// ErrMalformedPreferences.
func Assemble(user profile.User, relevantTurns []vector.Record, query string) (string, error) {
	dietary, err := stringList(user.Preferences, "dietary_requirements")
	if err != nil {
		return "", err
	}
	food, err := stringList(user.Preferences, "food_preferences")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Based on the following context about the user and their previous conversations,\n")
	b.WriteString("provide a personal and contextually relevant response to their query.\n\n")
	b.WriteString("User Information:\n")
	fmt.Fprintf(&b, "Name: %s\n", user.Name)
	fmt.Fprintf(&b, "Dietary Requirements: %s\n", strings.Join(dietary, ", "))
	fmt.Fprintf(&b, "Food Preferences: %s\n", strings.Join(food, ", "))
	fmt.Fprintf(&b, "Recent relevant conversations:\n%s\n", conversationSummary(relevantTurns))
	fmt.Fprintf(&b, "Current query: %s", query)

	return b.String(), nil
}

// conversationSummary renders up to maxRenderedTurns numbered,
// truncated previews, or the explicit absence marker.
func conversationSummary(turns []vector.Record) string {
	if len(turns) == 0 {
		return noConversationsMarker
	}

	n := len(turns)
	if n > maxRenderedTurns {
		n = maxRenderedTurns
	}

	previews := make([]string, 0, n)
	for i, rec := range turns[:n] {
		previews = append(previews, fmt.Sprintf("%d. %s", i+1, truncate(rec.Document, previewLength)))
	}
	return strings.Join(previews, "\n")
}

// truncate bounds s to limit runes, appending an ellipsis when cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// stringList extracts a required list-of-string preference key.
func stringList(prefs map[string]any, key string) ([]string, error) {
	raw, ok := prefs[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing key %q", ErrMalformedPreferences, key)
	}

	items, ok := raw.([]any)
	if !ok {
		// Preferences that never passed through JSON may hold []string
		// directly.
		if direct, isStrings := raw.([]string); isStrings {
			return direct, nil
		}
		return nil, fmt.Errorf("%w: key %q is not a list", ErrMalformedPreferences, key)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: key %q contains a non-string entry", ErrMalformedPreferences, key)
		}
		out = append(out, s)
	}
	return out, nil
}
