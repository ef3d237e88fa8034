// Package profile defines the editable document types (talent and company
// profiles), their operation whitelists, and the access-filtered projection
// handed to clients.
package profile

import (
	"talentpad/api/internal/ops"
)

// Type identifies a profile document type.
type Type string

const (
	TypeTalent  Type = "talent"
	TypeCompany Type = "company"
)

// FieldName is the identity-bearing field; edits touching it trigger the
// named-entity recompute after commit.
const FieldName = "name"

var talentSchema = ops.Schema{
	"name":     ops.FieldString,
	"fullName": ops.FieldString,
	"logoURL":  ops.FieldString,
	"skills":   ops.FieldStringList,
	"visible":  ops.FieldBool,
}

var companySchema = ops.Schema{
	"name":              ops.FieldString,
	"logoURL":           ops.FieldString,
	"payoff":            ops.FieldString,
	"revenueModel":      ops.FieldString,
	"sectors":           ops.FieldStringList,
	"openForInvestment": ops.FieldBool,
	"hiring":            ops.FieldBool,
	"visible":           ops.FieldBool,
}

// SchemaFor returns the operation whitelist for a profile type.
func SchemaFor(t Type) (ops.Schema, bool) {
	switch t {
	case TypeTalent:
		return talentSchema, true
	case TypeCompany:
		return companySchema, true
	default:
		return nil, false
	}
}

// ParseType validates a profile type from the request path.
func ParseType(raw string) (Type, bool) {
	t := Type(raw)
	_, ok := SchemaFor(t)
	return t, ok
}

// Defaults builds the initial document for a newly created profile. The acting
// user is recorded as owner inside the private substructure; ownership never
// changes afterwards.
func Defaults(t Type, ownerID string) map[string]any {
	switch t {
	case TypeCompany:
		return map[string]any{
			"name":              "{ New company! }",
			"logoURL":           "https://angel.co/images/shared/nopic_startup.png",
			"payoff":            "payoff goes here",
			"revenueModel":      "Unknown",
			"sectors":           []any{"please", "fill in the", "sectors"},
			"openForInvestment": false,
			"hiring":            false,
			"visible":           false,
			"private": map[string]any{
				"userId": ownerID,
			},
		}
	default:
		return map[string]any{
			"name":     "{ Your nickname }",
			"fullName": "{ Your full name }",
			"logoURL":  "https://angel.co/images/shared/nopic.png",
			"skills":   []any{"please", "fill in the", "skills"},
			"visible":  false,
			"private": map[string]any{
				"userId": ownerID,
			},
		}
	}
}
