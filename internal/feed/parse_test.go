package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/registry-cli/internal/registry"
)

// buildLine assembles a fixed-width line of the given length with values
// placed at the layout's spans.
func buildLine(length int, fields map[Span]string) string {
	buf := []byte(strings.Repeat(" ", length))
	for span, val := range fields {
		copy(buf[span.Start:span.End], val)
	}
	return string(buf)
}

func corporateLayout(t *testing.T) *Layout {
	t.Helper()
	l, ok := LayoutByName(BuiltinLayouts(), "corporate")
	require.True(t, ok)
	return l
}

func TestParseLine_FullRecord(t *testing.T) {
	l := corporateLayout(t)
	line := buildLine(l.MinLength, map[Span]string{
		l.DocumentNumber:  "L20000000001",
		l.LegalName:       "SUNRISE CONSULTING LLC",
		l.StatusCode:      "A",
		l.FilingType:      "DOMLLC",
		l.PrincipalAddr1:  "100 MAIN ST",
		l.PrincipalAddr2:  "STE 4",
		l.PrincipalCity:   "TAMPA",
		l.PrincipalState:  "FL",
		l.PrincipalZip:    "33601",
		l.MailingAddr1:    "PO BOX 99",
		l.MailingCity:     "TAMPA",
		l.MailingState:    "FL",
		l.MailingZip:      "33601",
		l.FilingDate:      "20200315",
		l.RegisteredAgent: "JANE DOE",
	})

	rec, err := ParseLine(line, l)
	require.NoError(t, err)
	assert.Equal(t, "L20000000001", rec.DocumentNumber)
	assert.Equal(t, "SUNRISE CONSULTING LLC", rec.LegalName)
	assert.Equal(t, registry.StatusActive, rec.Status)
	assert.Equal(t, "DOMLLC", rec.FilingType)
	assert.Equal(t, "100 MAIN ST, STE 4, TAMPA, FL, 33601", rec.PrincipalAddress)
	assert.Equal(t, "PO BOX 99, TAMPA, FL, 33601", rec.MailingAddress)
	assert.Equal(t, "JANE DOE", rec.RegisteredAgent)
	require.NotNil(t, rec.FilingDate)
	assert.Equal(t, time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC), *rec.FilingDate)
}

func TestParseLine_TooShort(t *testing.T) {
	l := corporateLayout(t)
	_, err := ParseLine(strings.Repeat("x", 900), l)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTooShort))
}

func TestParseLine_StatusMapping(t *testing.T) {
	l := corporateLayout(t)
	tests := []struct {
		code string
		want registry.Status
	}{
		{"A", registry.StatusActive},
		{"H", registry.StatusInactiveHeld},
		{"I", registry.StatusInactive},
		{"Z", registry.StatusInactive}, // unrecognized code maps to the default
		{"", registry.StatusInactive},
	}
	for _, tt := range tests {
		line := buildLine(l.MinLength, map[Span]string{
			l.DocumentNumber: "P00000000001",
			l.LegalName:      "ACME CORP",
			l.StatusCode:     tt.code,
		})
		rec, err := ParseLine(line, l)
		require.NoError(t, err)
		assert.Equal(t, tt.want, rec.Status, "code %q", tt.code)
	}
}

func TestParseLine_MalformedDates(t *testing.T) {
	l := corporateLayout(t)
	for _, bad := range []string{"", "2020", "2020031", "20201345", "ABCDEFGH", "00000000"} {
		line := buildLine(l.MinLength, map[Span]string{
			l.DocumentNumber: "P00000000001",
			l.LegalName:      "ACME CORP",
			l.StatusCode:     "A",
			l.FilingDate:     bad,
		})
		rec, err := ParseLine(line, l)
		require.NoError(t, err)
		assert.Nil(t, rec.FilingDate, "date %q", bad)
	}
}

func TestParseLine_UnmappedFilingTypeSucceeds(t *testing.T) {
	l := corporateLayout(t)
	line := buildLine(l.MinLength, map[Span]string{
		l.DocumentNumber: "P00000000001",
		l.LegalName:      "ACME CORP",
		l.StatusCode:     "A",
		l.FilingType:     "WEIRD",
	})
	rec, err := ParseLine(line, l)
	require.NoError(t, err)
	assert.Equal(t, "WEIRD", rec.FilingType)
}

func TestParseLine_BlankRequiredFields(t *testing.T) {
	l := corporateLayout(t)

	_, err := ParseLine(buildLine(l.MinLength, map[Span]string{
		l.LegalName: "NO NUMBER CORP",
	}), l)
	assert.Error(t, err)

	_, err = ParseLine(buildLine(l.MinLength, map[Span]string{
		l.DocumentNumber: "P00000000001",
	}), l)
	assert.Error(t, err)
}

func TestParseLine_EmptyAddressComponentsSkipped(t *testing.T) {
	l := corporateLayout(t)
	line := buildLine(l.MinLength, map[Span]string{
		l.DocumentNumber: "P00000000001",
		l.LegalName:      "ACME CORP",
		l.StatusCode:     "A",
		l.PrincipalCity:  "MIAMI",
		l.PrincipalState: "FL",
	})
	rec, err := ParseLine(line, l)
	require.NoError(t, err)
	assert.Equal(t, "MIAMI, FL", rec.PrincipalAddress)
	assert.Empty(t, rec.MailingAddress)
}
