package graph

import "strings"

// MissingParameterError reports every absent permission field at once
// so the UI can flag each offending input rather than a single opaque
// message.
type MissingParameterError struct {
	Fields []string
}

func (e *MissingParameterError) Error() string {
	return "missing required permission parameters: " + strings.Join(e.Fields, ", ")
}
