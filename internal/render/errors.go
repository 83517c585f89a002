package render

import "fmt"

// InvalidExportError reports a malformed share record. It names the
// offending export and field so the operator can fix the source data;
// nothing reaches disk when rendering fails.
type InvalidExportError struct {
	Export string
	Field  string
	Reason string
}

func (e *InvalidExportError) Error() string {
	return fmt.Sprintf("invalid export %q: field %s: %s", e.Export, e.Field, e.Reason)
}
