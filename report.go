package aiworkflows

import (
	"encoding/json"

	"github.com/brunobiangulo/aiworkflows/extract"
	"github.com/brunobiangulo/aiworkflows/strategy"
)

// MarshalJSON reports unit errors as messages.
func (r MarkdownResult) MarshalJSON() ([]byte, error) {
	type plain MarkdownResult
	return json.Marshal(struct {
		plain
		Errors []string `json:"errors,omitempty"`
	}{plain(r), errorMessages(r.Errors)})
}

// MarshalJSON reports the successful objects, their merge and the
// per-unit errors.
func (r JSONResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Strategy  strategy.Strategy `json:"strategy"`
		Cached    bool              `json:"cached"`
		Units     int               `json:"units"`
		Succeeded int               `json:"succeeded"`
		Objects   []map[string]any  `json:"objects"`
		Merged    map[string]any    `json:"merged"`
		Errors    []string          `json:"errors,omitempty"`
	}{Strategy: r.Strategy, Cached: r.Cached, Objects: []map[string]any{}, Merged: map[string]any{}}
	if r.Result != nil {
		out.Units = len(r.Entries)
		out.Succeeded = r.Succeeded()
		out.Objects = r.Objects()
		out.Merged = r.Merge()
	}
	out.Errors = errorMessages(r.Errors())
	return json.Marshal(out)
}

func errorMessages(errs []extract.UnitError) []string {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return msgs
}
