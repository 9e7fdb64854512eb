// Package field defines the closed set of canonical field names collected
// by the conversational flows.
package field

import "sort"

// Name is a canonical field identifier.
type Name string

// Contract creation fields.
const (
	AccountNumber Name = "ACCOUNT_NUMBER"
	ContractName  Name = "CONTRACT_NAME"
	Title         Name = "TITLE"
	Description   Name = "DESCRIPTION"
	Comments      Name = "COMMENTS"
	IsPricelist   Name = "IS_PRICELIST"
	HPPRequired   Name = "HPP_REQUIRED"
)

// Checklist fields.
const (
	DateOfSignature     Name = "DATE_OF_SIGNATURE"
	EffectiveDate       Name = "EFFECTIVE_DATE"
	ExpirationDate      Name = "EXPIRATION_DATE"
	FlowDownDate        Name = "FLOW_DOWN_DATE"
	PriceExpirationDate Name = "PRICE_EXPIRATION_DATE"
)

// Kind classifies how a field value is parsed and validated.
type Kind int

const (
	KindText Kind = iota
	KindIdentifier
	KindDate
	KindYesNo
)

func (k Kind) String() string {
	switch k {
	case KindIdentifier:
		return "identifier"
	case KindDate:
		return "date"
	case KindYesNo:
		return "yes/no"
	default:
		return "text"
	}
}

type meta struct {
	display string
	kind    Kind
}

var known = map[Name]meta{
	AccountNumber:       {"Account Number", KindIdentifier},
	ContractName:        {"Contract Name", KindText},
	Title:               {"Title", KindText},
	Description:         {"Description", KindText},
	Comments:            {"Comments", KindText},
	IsPricelist:         {"Is Pricelist", KindYesNo},
	HPPRequired:         {"HPP Required", KindYesNo},
	DateOfSignature:     {"Date of Signature", KindDate},
	EffectiveDate:       {"Effective Date", KindDate},
	ExpirationDate:      {"Expiration Date", KindDate},
	FlowDownDate:        {"Flow Down Date", KindDate},
	PriceExpirationDate: {"Price Expiration Date", KindDate},
}

// Valid reports whether n is one of the canonical names.
func (n Name) Valid() bool {
	_, ok := known[n]
	return ok
}

// Kind returns the value kind for n. Unknown names are treated as text.
func (n Name) Kind() Kind {
	return known[n].kind
}

// Display returns the human-readable label used in prompts.
func (n Name) Display() string {
	if s, ok := known[n]; ok {
		return s.display
	}
	return string(n)
}

// Parse converts a string into a Name, reporting whether it is canonical.
func Parse(s string) (Name, bool) {
	n := Name(s)
	return n, n.Valid()
}

// All returns every canonical name in sorted order.
func All() []Name {
	names := make([]Name, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Strings converts names to their string form.
func Strings(names []Name) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
