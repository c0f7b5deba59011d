// Package feed parses fixed-width registry bulk feed files. Field offsets
// are jurisdiction-specific configuration: each entity category ships a
// built-in layout, and a YAML layout file can override all of them for other
// feed variants.
package feed

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/registry-cli/internal/registry"
)

// Span is a half-open byte range [Start, End) within a fixed-width record.
type Span struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Layout describes one fixed-width feed variant: which category it feeds,
// the minimum structural record length, and where each field lives.
type Layout struct {
	Name     string            `yaml:"name"`
	Category registry.Category `yaml:"category"`

	// FilePattern matches feed files in directory mode (e.g. "cordata*.txt").
	FilePattern string `yaml:"file_pattern"`

	// MinLength is the fixed record length; shorter lines are structurally
	// invalid and rejected.
	MinLength int `yaml:"min_length"`

	DocumentNumber Span `yaml:"document_number"`
	LegalName      Span `yaml:"legal_name"`
	StatusCode     Span `yaml:"status_code"`
	FilingType     Span `yaml:"filing_type"`

	PrincipalAddr1 Span `yaml:"principal_addr1"`
	PrincipalAddr2 Span `yaml:"principal_addr2"`
	PrincipalCity  Span `yaml:"principal_city"`
	PrincipalState Span `yaml:"principal_state"`
	PrincipalZip   Span `yaml:"principal_zip"`

	MailingAddr1 Span `yaml:"mailing_addr1"`
	MailingAddr2 Span `yaml:"mailing_addr2"`
	MailingCity  Span `yaml:"mailing_city"`
	MailingState Span `yaml:"mailing_state"`
	MailingZip   Span `yaml:"mailing_zip"`

	FilingDate      Span `yaml:"filing_date"`
	RegisteredAgent Span `yaml:"registered_agent"`

	// StatusCodes maps the single-character feed status code to a normalized
	// status. Unrecognized codes fall back to DefaultStatus.
	StatusCodes   map[string]registry.Status `yaml:"status_codes"`
	DefaultStatus registry.Status            `yaml:"default_status"`
}

// BuiltinLayouts returns the default layouts, one per entity category.
func BuiltinLayouts() []Layout {
	statusCodes := map[string]registry.Status{
		"A": registry.StatusActive,
		"H": registry.StatusInactiveHeld,
	}

	return []Layout{
		{
			Name:            "corporate",
			Category:        registry.CategoryCorporate,
			FilePattern:     "cordata*.txt",
			MinLength:       1440,
			DocumentNumber:  Span{0, 12},
			LegalName:       Span{12, 204},
			StatusCode:      Span{204, 205},
			FilingType:      Span{205, 220},
			PrincipalAddr1:  Span{220, 262},
			PrincipalAddr2:  Span{262, 304},
			PrincipalCity:   Span{304, 332},
			PrincipalState:  Span{332, 334},
			PrincipalZip:    Span{334, 344},
			MailingAddr1:    Span{344, 386},
			MailingAddr2:    Span{386, 428},
			MailingCity:     Span{428, 456},
			MailingState:    Span{456, 458},
			MailingZip:      Span{458, 468},
			FilingDate:      Span{468, 476},
			RegisteredAgent: Span{476, 518},
			StatusCodes:     statusCodes,
			DefaultStatus:   registry.StatusInactive,
		},
		{
			Name:            "fictitious",
			Category:        registry.CategoryFictitious,
			FilePattern:     "ficdata*.txt",
			MinLength:       1000,
			DocumentNumber:  Span{0, 12},
			LegalName:       Span{12, 204},
			StatusCode:      Span{204, 205},
			FilingType:      Span{205, 220},
			PrincipalAddr1:  Span{220, 262},
			PrincipalAddr2:  Span{262, 304},
			PrincipalCity:   Span{304, 332},
			PrincipalState:  Span{332, 334},
			PrincipalZip:    Span{334, 344},
			FilingDate:      Span{344, 352},
			RegisteredAgent: Span{352, 394},
			StatusCodes:     statusCodes,
			DefaultStatus:   registry.StatusInactive,
		},
		{
			Name:            "partnership",
			Category:        registry.CategoryPartnership,
			FilePattern:     "gpdata*.txt",
			MinLength:       1200,
			DocumentNumber:  Span{0, 12},
			LegalName:       Span{12, 204},
			StatusCode:      Span{204, 205},
			FilingType:      Span{205, 220},
			PrincipalAddr1:  Span{220, 262},
			PrincipalAddr2:  Span{262, 304},
			PrincipalCity:   Span{304, 332},
			PrincipalState:  Span{332, 334},
			PrincipalZip:    Span{334, 344},
			MailingAddr1:    Span{344, 386},
			MailingAddr2:    Span{386, 428},
			MailingCity:     Span{428, 456},
			MailingState:    Span{456, 458},
			MailingZip:      Span{458, 468},
			FilingDate:      Span{468, 476},
			RegisteredAgent: Span{476, 518},
			StatusCodes:     statusCodes,
			DefaultStatus:   registry.StatusInactive,
		},
	}
}

// LoadLayouts returns the built-in layouts, or the layouts defined in the
// given YAML file when path is non-empty.
func LoadLayouts(path string) ([]Layout, error) {
	if path == "" {
		return BuiltinLayouts(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: read layout file %s", path)
	}

	var doc struct {
		Layouts []Layout `yaml:"layouts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "feed: parse layout file %s", path)
	}
	if len(doc.Layouts) == 0 {
		return nil, eris.Errorf("feed: layout file %s defines no layouts", path)
	}

	for i := range doc.Layouts {
		if err := validateLayout(&doc.Layouts[i]); err != nil {
			return nil, err
		}
	}
	return doc.Layouts, nil
}

// LayoutByName finds a layout by its name.
func LayoutByName(layouts []Layout, name string) (*Layout, bool) {
	for i := range layouts {
		if layouts[i].Name == name {
			return &layouts[i], true
		}
	}
	return nil, false
}

func validateLayout(l *Layout) error {
	if l.Name == "" {
		return eris.New("feed: layout missing name")
	}
	if l.MinLength <= 0 {
		return eris.Errorf("feed: layout %s: min_length must be positive", l.Name)
	}
	for _, span := range []Span{l.DocumentNumber, l.LegalName, l.StatusCode} {
		if span.End <= span.Start {
			return eris.Errorf("feed: layout %s: invalid field span [%d,%d)", l.Name, span.Start, span.End)
		}
		if span.End > l.MinLength {
			return eris.Errorf("feed: layout %s: field span [%d,%d) exceeds min_length %d", l.Name, span.Start, span.End, l.MinLength)
		}
	}
	if l.DefaultStatus == "" {
		l.DefaultStatus = registry.StatusInactive
	}
	return nil
}
