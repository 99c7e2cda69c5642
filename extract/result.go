package extract

import "fmt"

// Entry is the outcome for one unit. Object is nil when Err is set.
type Entry struct {
	Ordinal int
	Page    int
	Object  map[string]any
	Raw     string
	Retries int
	Err     error
}

// UnitError attributes a failure to a unit.
type UnitError struct {
	Ordinal int
	Page    int
	Err     error
}

func (e UnitError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("unit %d (page %d): %v", e.Ordinal, e.Page, e.Err)
	}
	return fmt.Sprintf("unit %d: %v", e.Ordinal, e.Err)
}

func (e UnitError) Unwrap() error { return e.Err }

// Result holds one Entry per unit, in ordinal order.
type Result struct {
	Entries []Entry
}

// Objects returns the successful objects in ordinal order.
func (r *Result) Objects() []map[string]any {
	out := make([]map[string]any, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Err == nil && e.Object != nil {
			out = append(out, e.Object)
		}
	}
	return out
}

// Errors returns the failed units in ordinal order.
func (r *Result) Errors() []UnitError {
	var out []UnitError
	for _, e := range r.Entries {
		if e.Err != nil {
			out = append(out, UnitError{Ordinal: e.Ordinal, Page: e.Page, Err: e.Err})
		}
	}
	return out
}

// Succeeded counts the units that produced an object.
func (r *Result) Succeeded() int {
	return len(r.Objects())
}

// Merge combines the successful objects into one. List values under the
// same key are concatenated in ordinal order; for any other value the first
// occurrence is kept. Failed units contribute nothing. No deduplication is
// done: callers that need it merge with their own key.
func (r *Result) Merge() map[string]any {
	merged := make(map[string]any)
	for _, obj := range r.Objects() {
		for k, v := range obj {
			list, isList := v.([]any)
			prev, seen := merged[k]
			switch {
			case !seen:
				if isList {
					merged[k] = append(make([]any, 0, len(list)), list...)
				} else {
					merged[k] = v
				}
			case isList:
				if acc, ok := prev.([]any); ok {
					merged[k] = append(acc, list...)
				}
			}
		}
	}
	return merged
}
