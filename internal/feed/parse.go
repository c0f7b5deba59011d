package feed

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/registry-cli/internal/registry"
)

// ErrTooShort marks a line below the layout's fixed record length. It is a
// per-line error: ingestion counts it and moves on.
var ErrTooShort = eris.New("feed: record shorter than layout minimum")

// Record is the parsed form of one fixed-width feed line, prior to
// normalization and entity-type mapping.
type Record struct {
	DocumentNumber   string
	LegalName        string
	Status           registry.Status
	FilingType       string
	PrincipalAddress string
	MailingAddress   string
	RegisteredAgent  string
	FilingDate       *time.Time
}

// ParseLine extracts a Record from one fixed-width line according to the
// layout. A line shorter than the layout minimum fails with ErrTooShort; a
// line with a blank document number or name fails as unparseable. Everything
// else succeeds: unknown status codes map to the layout default and an
// unmapped filing-type code carries forward as-is.
func ParseLine(line string, l *Layout) (*Record, error) {
	if len(line) < l.MinLength {
		return nil, eris.Wrapf(ErrTooShort, "line length %d < %d", len(line), l.MinLength)
	}

	docNum := field(line, l.DocumentNumber)
	name := field(line, l.LegalName)
	if docNum == "" {
		return nil, eris.New("feed: blank document number")
	}
	if name == "" {
		return nil, eris.New("feed: blank legal name")
	}

	return &Record{
		DocumentNumber: docNum,
		LegalName:      name,
		Status:         mapStatus(field(line, l.StatusCode), l),
		FilingType:     field(line, l.FilingType),
		PrincipalAddress: joinAddress(
			field(line, l.PrincipalAddr1),
			field(line, l.PrincipalAddr2),
			field(line, l.PrincipalCity),
			field(line, l.PrincipalState),
			field(line, l.PrincipalZip),
		),
		MailingAddress: joinAddress(
			field(line, l.MailingAddr1),
			field(line, l.MailingAddr2),
			field(line, l.MailingCity),
			field(line, l.MailingState),
			field(line, l.MailingZip),
		),
		RegisteredAgent: field(line, l.RegisteredAgent),
		FilingDate:      parseDate(field(line, l.FilingDate)),
	}, nil
}

// field extracts a span from the line and trims surrounding whitespace. A
// zero span (unset in the layout) yields "".
func field(line string, s Span) string {
	if s.End <= s.Start {
		return ""
	}
	end := s.End
	if end > len(line) {
		end = len(line)
	}
	if s.Start >= end {
		return ""
	}
	return strings.TrimSpace(line[s.Start:end])
}

func mapStatus(code string, l *Layout) registry.Status {
	if st, ok := l.StatusCodes[code]; ok {
		return st
	}
	return l.DefaultStatus
}

// joinAddress assembles a display string from non-empty components.
func joinAddress(parts ...string) string {
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

// parseDate parses a YYYYMMDD field. Malformed or impossible dates yield nil
// rather than failing the record.
func parseDate(s string) *time.Time {
	if len(s) != 8 {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	return &t
}
