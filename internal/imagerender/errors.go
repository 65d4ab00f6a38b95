package imagerender

import "errors"

var (
	// ErrNoMatch means the fragment is not recognized image markup. Callers
	// pass the original fragment through unchanged.
	ErrNoMatch = errors.New("no image markup matched")
	// ErrAssetNotFound means the referenced file is deleted, missing or in an
	// unsupported table.
	ErrAssetNotFound = errors.New("asset not found")
)

// DiagnosticCode classifies a non-fatal rendering problem.
type DiagnosticCode string

const (
	DiagnosticInvalidDimensions DiagnosticCode = "invalid_dimensions"
	DiagnosticProcessingFailed  DiagnosticCode = "processing_failed"
	DiagnosticPopupFailed       DiagnosticCode = "popup_processing_failed"
	DiagnosticLookupFailed      DiagnosticCode = "lookup_failed"
	DiagnosticRecovered         DiagnosticCode = "recovered_panic"
)

// Diagnostic is reported alongside the rendered markup; it never aborts rendering.
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	Message string         `json:"message"`
	FileUID uint           `json:"file_uid,omitempty"`
}
