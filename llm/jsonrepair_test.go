package llm

import (
	"errors"
	"testing"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		key  string
		want any
	}{
		{"strict", `{"a": 1}`, "a", float64(1)},
		{"code fence", "```json\n{\"a\": \"x\"}\n```", "a", "x"},
		{"bare fence", "```\n{\"a\": true}\n```", "a", true},
		{"leading prose", "Here is the result:\n{\"a\": \"y\"}\nHope this helps.", "a", "y"},
		{"trailing comma", `{"a": "z", "b": [1, 2,],}`, "a", "z"},
		{"comma in string", `{"a": "x,}", }`, "a", "x,}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ParseJSON(tt.raw)
			if err != nil {
				t.Fatalf("ParseJSON: %v", err)
			}
			if obj[tt.key] != tt.want {
				t.Errorf("obj[%q] = %#v, want %#v", tt.key, obj[tt.key], tt.want)
			}
		})
	}
}

func TestParseJSONInvalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"no json here",
		"null",
		"[1, 2, 3]",
		`{"a": }`,
		"} backwards {",
	} {
		if _, err := ParseJSON(raw); !errors.Is(err, ErrInvalidJSON) {
			t.Errorf("ParseJSON(%q) error = %v, want ErrInvalidJSON", raw, err)
		}
	}
}

func TestRemoveTrailingCommas(t *testing.T) {
	in := `{"a": [1, 2, ], "s": "keep, ]", }`
	want := `{"a": [1, 2 ], "s": "keep, ]" }`
	if got := removeTrailingCommas(in); got != want {
		t.Errorf("removeTrailingCommas = %q, want %q", got, want)
	}
}

func TestSchema(t *testing.T) {
	s, err := CompileSchema(`{
		"type": "object",
		"required": ["items"],
		"properties": {"items": {"type": "array", "items": {"type": "string"}}}
	}`)
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}
	if err := s.Validate(map[string]any{"items": []any{"a", "b"}}); err != nil {
		t.Errorf("valid object rejected: %v", err)
	}
	if err := s.Validate(map[string]any{"items": []any{1}}); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("wrong item type: error = %v, want ErrInvalidJSON", err)
	}
	if err := s.Validate(map[string]any{}); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("missing key: error = %v, want ErrInvalidJSON", err)
	}

	if _, err := CompileSchema("{not json"); !errors.Is(err, ErrConfig) {
		t.Errorf("bad schema: error = %v, want ErrConfig", err)
	}
}
