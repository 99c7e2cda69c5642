package aiworkflows

import (
	"github.com/brunobiangulo/aiworkflows/extract"
	"github.com/brunobiangulo/aiworkflows/llm"
	"github.com/brunobiangulo/aiworkflows/parser"
)

// The error taxonomy. Each is the sentinel of the package that detects the
// failure, re-exported so callers need only this package for errors.Is.
var (
	// ErrDocumentUnreadable is returned for missing, corrupt or empty input.
	ErrDocumentUnreadable = parser.ErrUnreadable

	// ErrUnsupportedFormat is returned when no backend can handle a format.
	// Such errors also match ErrDocumentUnreadable.
	ErrUnsupportedFormat = parser.ErrUnsupportedFormat

	// ErrProviderTransient marks rate limits, timeouts and transient network
	// failures that outlasted the retry budget.
	ErrProviderTransient = llm.ErrTransient

	// ErrProviderFatal marks provider failures that are never retried, such
	// as rejected credentials.
	ErrProviderFatal = llm.ErrFatal

	// ErrJSONValidation is returned when the model's answer could not be
	// parsed or validated after every retry.
	ErrJSONValidation = llm.ErrInvalidJSON

	// ErrConfiguration is returned for missing or inconsistent settings.
	ErrConfiguration = llm.ErrConfig

	// ErrAllUnitsFailed is returned when no unit of a batch succeeded.
	ErrAllUnitsFailed = extract.ErrAllUnitsFailed
)
