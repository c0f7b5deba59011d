// Package registry defines the registered-entity corpus: the record shape
// shared by all entity categories and the stores that persist it.
package registry

import "time"

// Status is a registry status in its normalized form.
type Status string

const (
	// StatusActive marks an entity currently registered and in good standing.
	StatusActive Status = "ACTIVE"
	// StatusInactiveHeld marks an entity no longer active whose name is still
	// reserved for a grace period.
	StatusInactiveHeld Status = "INACTIVE_HELD"
	// StatusInactive marks an entity no longer active with no name hold.
	StatusInactive Status = "INACTIVE"
)

// Category identifies which registry table an entity record belongs to.
type Category string

const (
	CategoryCorporate   Category = "corporate"
	CategoryFictitious  Category = "fictitious"
	CategoryPartnership Category = "partnership"
)

// Categories lists every entity category merged into the availability search
// surface, in stable order.
var Categories = []Category{CategoryCorporate, CategoryFictitious, CategoryPartnership}

// Table returns the corpus table name for a category.
func (c Category) Table() string {
	switch c {
	case CategoryCorporate:
		return "corporate_entities"
	case CategoryFictitious:
		return "fictitious_names"
	case CategoryPartnership:
		return "partnerships"
	default:
		return string(c)
	}
}

// Label returns the human-readable category name.
func (c Category) Label() string {
	switch c {
	case CategoryCorporate:
		return "Corporate Entity"
	case CategoryFictitious:
		return "Fictitious Name"
	case CategoryPartnership:
		return "General Partnership"
	default:
		return string(c)
	}
}

// EntityRecord is one registered business entity sourced from the bulk feed.
type EntityRecord struct {
	DocumentNumber   string     `json:"document_number"`
	LegalName        string     `json:"legal_name"`
	NormalizedName   string     `json:"normalized_name"`
	Status           Status     `json:"status"`
	Category         Category   `json:"category"`
	FilingType       string     `json:"filing_type"`
	EntityType       string     `json:"entity_type"`
	PrincipalAddress string     `json:"principal_address,omitempty"`
	MailingAddress   string     `json:"mailing_address,omitempty"`
	RegisteredAgent  string     `json:"registered_agent,omitempty"`
	FilingDate       *time.Time `json:"filing_date,omitempty"`
	LastUpdated      time.Time  `json:"last_updated"`
}

// filingTypeLabels maps registry filing-type codes to entity type labels.
// Codes vary by jurisdiction; an unmapped code carries forward as-is.
var filingTypeLabels = map[string]string{
	"DOMP":   "Domestic Profit Corporation",
	"DOMNP":  "Domestic Non-Profit Corporation",
	"FORP":   "Foreign Profit Corporation",
	"FORNP":  "Foreign Non-Profit Corporation",
	"DOMLLC": "Domestic Limited Liability Company",
	"FORLLC": "Foreign Limited Liability Company",
	"DOMLP":  "Domestic Limited Partnership",
	"FORLP":  "Foreign Limited Partnership",
	"LLP":    "Limited Liability Partnership",
	"GP":     "General Partnership",
	"FICT":   "Fictitious Name",
	"TRUST":  "Declaration of Trust",
}

// EntityTypeLabel maps a raw filing-type code to its human-readable label.
// Unrecognized codes return the raw code so the record still ingests.
func EntityTypeLabel(filingType string) string {
	if label, ok := filingTypeLabels[filingType]; ok {
		return label
	}
	return filingType
}
