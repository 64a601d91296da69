// Package scan turns periodic recognition responses into a stable scan
// state and a deduplicated log of recent matches.
package scan

import (
	"strings"

	"github.com/kozaktomas/attendance-kiosk/internal/attendu"
	"golang.org/x/text/cases"
)

// Kind is the classification of one completed capture tick.
type Kind string

// Kind constants name the possible tick outcomes.
const (
	KindMatched        Kind = "matched"
	KindUnknown        Kind = "unknown"
	KindNoFace         Kind = "no_face"
	KindDisabled       Kind = "disabled"
	KindTransportError Kind = "transport_error"
)

// Outcome is the result of one capture tick. Subject fields are set only
// for KindMatched, Message only for failures.
type Outcome struct {
	Kind          Kind    `json:"kind"`
	SubjectID     int64   `json:"subject_id,omitempty"`
	SubjectName   string  `json:"subject_name,omitempty"`
	AlreadyMarked bool    `json:"already_marked,omitempty"`
	Distance      float64 `json:"distance,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// FromResult classifies the response of the attendance mark endpoint.
func FromResult(res *attendu.MarkResult, err error) Outcome {
	if err != nil {
		return Classify(err)
	}
	if res == nil || res.MatchedStudent == nil {
		return Outcome{Kind: KindUnknown}
	}
	return Outcome{
		Kind:          KindMatched,
		SubjectID:     res.MatchedStudent.ID,
		SubjectName:   res.MatchedStudent.Name,
		AlreadyMarked: res.AlreadyMarked,
		Distance:      res.Distance,
	}
}

// Classify maps a submission error to an outcome by matching the server
// message against a fixed vocabulary, ignoring case. Anything not in the
// vocabulary is a transport error.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindUnknown}
	}
	msg := err.Error()
	folded := cases.Fold().String(msg)

	kind := KindTransportError
	switch {
	case strings.Contains(folded, "disabled"):
		kind = KindDisabled
	case strings.Contains(folded, "no face"), strings.Contains(folded, "no single face"):
		kind = KindNoFace
	case strings.Contains(folded, "no confident match"):
		kind = KindUnknown
	}
	return Outcome{Kind: kind, Message: msg}
}
