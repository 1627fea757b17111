package domain

import (
	"fmt"
	"strings"
)

// AttachmentRef points at a file uploaded alongside a reply.
type AttachmentRef struct {
	URL string `json:"url"`
}

// Answer is one captured reply: free-form text plus zero or more
// attachment references. Immutable once captured.
type Answer struct {
	Text        string          `json:"text"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

// Display renders the answer as a single string, attachments appended
// as numbered links after the text body.
func (a Answer) Display() string {
	if len(a.Attachments) == 0 {
		return a.Text
	}
	links := make([]string, 0, len(a.Attachments))
	for i, att := range a.Attachments {
		links = append(links, fmt.Sprintf("[Attachment %d](%s)", i+1, att.URL))
	}
	if strings.TrimSpace(a.Text) == "" {
		return strings.Join(links, "\n")
	}
	return a.Text + "\n\n" + strings.Join(links, "\n")
}
