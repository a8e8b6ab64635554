package ingest

import (
	"fmt"
	"strings"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
)

// RawSample is one message used as extraction input. Only Subject and
// Body contribute text; the other fields are carried for the report.
type RawSample struct {
	Subject  string `json:"subject" yaml:"subject"`
	From     string `json:"from" yaml:"from"`
	To       string `json:"to" yaml:"to"`
	Date     string `json:"date" yaml:"date"`
	Body     string `json:"body" yaml:"body"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Path is the file the sample was loaded from, if any.
	Path string `json:"-" yaml:"-"`
}

// Validate checks that the sample has text to extract from.
func (s RawSample) Validate() error {
	if strings.TrimSpace(s.Subject) == "" && strings.TrimSpace(s.Body) == "" {
		return fmt.Errorf("%w: no subject or body", internalerr.ErrSampleUnreadable)
	}
	return nil
}

// Text returns subject and body separated by a line break, so the subject
// forms its own sentence.
func (s RawSample) Text() string {
	switch {
	case s.Subject == "":
		return s.Body
	case s.Body == "":
		return s.Subject
	default:
		return s.Subject + "\n" + s.Body
	}
}
