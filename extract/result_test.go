package extract

import (
	"errors"
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	r := &Result{Entries: []Entry{
		{Ordinal: 0, Object: map[string]any{"items": []any{"a", "b"}, "title": "first"}},
		{Ordinal: 1, Err: errors.New("failed")},
		{Ordinal: 2, Object: map[string]any{"items": []any{"b"}, "title": "second"}},
		{Ordinal: 3, Object: map[string]any{"items": []any{}}},
	}}
	got := r.Merge()
	want := map[string]any{"items": []any{"a", "b", "b"}, "title": "first"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %v, want %v (duplicates kept)", got, want)
	}
}

func TestMergeEmptyList(t *testing.T) {
	r := &Result{Entries: []Entry{{Object: map[string]any{"items": []any{}}}}}
	items, ok := r.Merge()["items"].([]any)
	if !ok || items == nil || len(items) != 0 {
		t.Errorf("items = %#v", r.Merge()["items"])
	}
}

func TestUnitError(t *testing.T) {
	cause := errors.New("boom")
	e := UnitError{Ordinal: 2, Page: 3, Err: cause}
	if e.Error() != "unit 2 (page 3): boom" || !errors.Is(e, cause) {
		t.Errorf("UnitError = %q", e.Error())
	}
	if got := (UnitError{Ordinal: 1, Err: cause}).Error(); got != "unit 1: boom" {
		t.Errorf("Error() = %q", got)
	}
}
