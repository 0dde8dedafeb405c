// Package conversation persists the append-only log of user/assistant
// exchanges and owns the legacy turn-content encoding.
package conversation

import (
	"strings"
	"time"
)

// ContentDelimiter joins the query and the response into the single
// stored content string. Kept byte-compatible with rows written by
// earlier versions of the system; only this package may touch it.
const ContentDelimiter = "|"

// Turn is one query/response exchange. Turns are created exactly once
// per generation call and never mutated or deleted.
type Turn struct {
	ID        string
	UserID    string
	Timestamp time.Time
	Content   string
}

// EncodeContent joins a query and a response into the stored content
// form. The result splits back via SplitContent.
func EncodeContent(query, response string) string {
	return query + ContentDelimiter + response
}

// SplitContent recovers the query and response from a stored content
// string by splitting on the first delimiter occurrence. Content
// without a delimiter is treated as a bare query with an empty
// response.
func SplitContent(content string) (query, response string) {
	query, response, _ = strings.Cut(content, ContentDelimiter)
	return query, response
}

// Query returns the user-query half of the turn content.
func (t Turn) Query() string {
	q, _ := SplitContent(t.Content)
	return q
}

// Response returns the assistant-response half of the turn content.
func (t Turn) Response() string {
	_, r := SplitContent(t.Content)
	return r
}
