package validator

import "encoding/xml"

// ValidationError reports a single structural or value-level validation
// failure at a specific point in the document.
type ValidationError struct {
	Path    string
	Kind    string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Path + ": " + e.Kind + ": " + e.Message
}

// UndeclaredElement reports an element with no matching declaration and
// no covering wildcard in its parent's content model.
type UndeclaredElement struct {
	Path string
	Name xml.Name
}

func (e *UndeclaredElement) Error() string {
	return "validation: " + e.Path + ": undeclared element " + clarkString(e.Name)
}

// UndeclaredAttribute reports an attribute present on an element whose
// type has neither a matching declaration for it nor an attribute
// wildcard.
type UndeclaredAttribute struct {
	Path string
	Name xml.Name
}

func (e *UndeclaredAttribute) Error() string {
	return "validation: " + e.Path + ": undeclared attribute " + clarkString(e.Name)
}

// UnresolvedType reports a type name that the grammar could not resolve
// while the validator was running (distinct from schema.UnresolvedReference,
// which is reported at load time).
type UnresolvedType struct {
	Path string
	Name xml.Name
}

func (e *UnresolvedType) Error() string {
	return "validation: " + e.Path + ": unresolved type " + clarkString(e.Name)
}

func clarkString(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}
