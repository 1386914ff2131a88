package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaLookup is matched by *SchemaLookupError.
	ErrSchemaLookup = errors.New("schema lookup failed")

	// ErrUnsupportedSchemaType is matched by *UnsupportedSchemaTypeError.
	ErrUnsupportedSchemaType = errors.New("unsupported schema type")

	// ErrFinalized is returned when a Builder is modified after Finalize.
	ErrFinalized = errors.New("schema already finalized")
)

// SchemaLookupError reports an unknown property id.
type SchemaLookupError struct {
	ID string
}

func (e *SchemaLookupError) Error() string {
	return fmt.Sprintf("schema property %q not found", e.ID)
}

func (e *SchemaLookupError) Is(target error) bool {
	return target == ErrSchemaLookup
}

// UnsupportedSchemaTypeError reports a schema defect detected while deriving
// CLI arguments: a null or unknown leaf type, or an enum on a non-string type.
type UnsupportedSchemaTypeError struct {
	ID     string
	Type   Type
	Reason string
}

func (e *UnsupportedSchemaTypeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("problem with schema for %q: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("schema property %q: `%s` type unknown or disallowed", e.ID, e.Type)
}

func (e *UnsupportedSchemaTypeError) Is(target error) bool {
	return target == ErrUnsupportedSchemaType
}

// ValidationError is one mismatch between a value and the schema. It is data,
// not a Go error: Validate returns a slice of these.
type ValidationError struct {
	// SchemaPath is a JSON pointer into the schema ending with the failing keyword.
	SchemaPath string `json:"schemaPath"`
	// InstancePath is a JSON pointer into the validated value.
	InstancePath string `json:"instancePath"`
	Keyword      string `json:"keyword"`
	Message      string `json:"message"`
	Data         any    `json:"data,omitempty"`
}

func (e ValidationError) String() string {
	where := e.InstancePath
	if where == "" {
		where = "(root)"
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// Messages joins the errors into a single line, mostly for logs.
func Messages(errs []ValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
