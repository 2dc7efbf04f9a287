// Package mbean orders managed-bean metadata for display.
//
// The comparators are total orders: attributes by name, names by domain
// then type, operations by name, parameter count and parameter types.
// Operations that agree on all of these are indistinguishable overloads and
// rejected with errors.ErrDuplicateOperation.
package mbean

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/validation"
)

// UnknownType is the type of a name without a type key.
const UnknownType = "Unknown"

// Name identifies a managed bean.
type Name struct {
	Domain string
	Type   string

	// Other holds the remaining key=value pairs in their original order,
	// comma separated.
	Other string
}

// Attribute describes a managed-bean attribute.
type Attribute struct {
	Name        string
	Type        string
	Description string
	Writable    bool
}

// Parameter describes an operation parameter.
type Parameter struct {
	Name        string
	Type        string
	Description string
}

// Impact classifies what an operation does.
type Impact int

const (
	ImpactUnknown Impact = iota
	ImpactInfo
	ImpactAction
	ImpactActionInfo
)

// String returns the display form of the impact.
func (i Impact) String() string {
	switch i {
	case ImpactInfo:
		return "Info"
	case ImpactAction:
		return "Action"
	case ImpactActionInfo:
		return "Info/Action"
	default:
		return "Unknown"
	}
}

// Operation describes a managed-bean operation.
type Operation struct {
	Name        string
	Params      []Parameter
	ReturnType  string
	Impact      Impact
	Description string
}

// Signature returns "name(type1,type2)".
func (o Operation) Signature() string {
	types := make([]string, len(o.Params))
	for i, p := range o.Params {
		types[i] = p.Type
	}
	return o.Name + "(" + strings.Join(types, ",") + ")"
}

// =============================================================================
// Comparators
// =============================================================================

// CompareAttributes orders attributes by name.
func CompareAttributes(a, b Attribute) int {
	return strings.Compare(a.Name, b.Name)
}

// CompareNames orders names by domain, then type. Names equal in both are
// ordered by their remaining key properties.
func CompareNames(a, b Name) int {
	if c := strings.Compare(a.Domain, b.Domain); c != 0 {
		return c
	}
	if c := strings.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return strings.Compare(a.Other, b.Other)
}

// CompareOperations orders operations by name, then parameter count, then
// parameter types position by position. Indistinguishable overloads have no
// order: CompareOperations panics with an error matching
// errors.ErrDuplicateOperation. Use SortOperations to get it as an error.
func CompareOperations(a, b Operation) int {
	if c := compareOperations(a, b); c != 0 {
		return c
	}
	panic(fmt.Errorf("%s: %w", a.Signature(), errors.ErrDuplicateOperation))
}

func compareOperations(a, b Operation) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := cmp.Compare(len(a.Params), len(b.Params)); c != 0 {
		return c
	}
	for i := range a.Params {
		if c := strings.Compare(a.Params[i].Type, b.Params[i].Type); c != 0 {
			return c
		}
	}
	return 0
}

// SortAttributes sorts attributes in place.
func SortAttributes(attrs []Attribute) {
	slices.SortStableFunc(attrs, CompareAttributes)
}

// SortNames sorts names in place.
func SortNames(names []Name) {
	slices.SortStableFunc(names, CompareNames)
}

// SortOperations sorts operations in place. It fails without modifying ops
// if two operations share name and parameter types.
func SortOperations(ops []Operation) error {
	if err := ValidateOperations(ops); err != nil {
		return err
	}
	// Signatures are unique now, so the order is strict.
	slices.SortFunc(ops, compareOperations)
	return nil
}

// ValidateOperations reports duplicate operation signatures.
func ValidateOperations(ops []Operation) error {
	seen := make(map[string]struct{}, len(ops))
	var errs []error
	for _, op := range ops {
		sig := op.Signature()
		if _, dup := seen[sig]; dup {
			errs = append(errs, fmt.Errorf("%s: %w", sig, errors.ErrDuplicateOperation))
			continue
		}
		seen[sig] = struct{}{}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Names
// =============================================================================

// ParseName parses "domain:key=value[,key=value...]". The value of the type
// key (matched ignoring case) becomes Type; UnknownType when absent. Quoted
// values are not supported.
func ParseName(s string) (Name, error) {
	domain, props, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Name{}, errors.NewInvalidValue("bean name", s, "missing ':' after domain")
	}
	if strings.TrimSpace(props) == "" {
		return Name{}, errors.NewInvalidValue("bean name", s, "no key properties")
	}

	name := Name{Domain: domain, Type: UnknownType}
	var other []string
	seen := make(map[string]struct{})

	for _, pair := range strings.Split(props, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			return Name{}, errors.NewInvalidValue("bean name", s, fmt.Sprintf("malformed property '%s'", pair))
		}
		if err := validation.ValidateName(key, validation.PropertyRules()); err != nil {
			return Name{}, errors.NewInvalidValue("bean name", s, err.Error())
		}
		if _, dup := seen[key]; dup {
			return Name{}, errors.NewInvalidValue("bean name", s, fmt.Sprintf("duplicate key '%s'", key))
		}
		seen[key] = struct{}{}

		if strings.EqualFold(key, "type") {
			name.Type = value
			continue
		}
		other = append(other, key+"="+value)
	}

	name.Other = strings.Join(other, ",")
	return name, nil
}

// String returns "domain:type=T[,others]". Names without a type key print
// without one.
func (n Name) String() string {
	var props []string
	if n.Type != UnknownType {
		props = append(props, "type="+n.Type)
	}
	if n.Other != "" {
		props = append(props, n.Other)
	}
	return n.Domain + ":" + strings.Join(props, ",")
}
