package structure

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/types"
)

// ThemeSchema is the JSON schema the analyzer output must satisfy. Page
// numbers and order may arrive as numbers or numeric strings.
const ThemeSchema = `{
  "type": "object",
  "required": ["temas"],
  "properties": {
    "temas": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["titulo", "paginaInicial", "paginaFinal"],
        "properties": {
          "ordem": {"$ref": "#/definitions/int"},
          "titulo": {"type": "string", "pattern": "\\S"},
          "paginaInicial": {"$ref": "#/definitions/int"},
          "paginaFinal": {"$ref": "#/definitions/int"},
          "subtopicos": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  },
  "definitions": {
    "int": {
      "anyOf": [
        {"type": "integer", "minimum": 0},
        {"type": "string", "pattern": "^\\s*\\d+\\s*$"}
      ]
    }
  }
}`

var themeSchema = mustCompileSchema("temas.json", ThemeSchema)

func mustCompileSchema(name, doc string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(doc)); err != nil {
		panic(fmt.Sprintf("load %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", name, err))
	}
	return schema
}

// errNoJSON is reported when no candidate contained a JSON object at all.
var errNoJSON = errors.New("no JSON object found in model output")

// ParseThemes extracts the theme list from raw model output. It tolerates
// Markdown code fences and prose around the JSON object. Candidates are tried
// in order (as is, fence-stripped, first balanced object, first "{" to last
// "}") and the first one that decodes and matches ThemeSchema wins.
func ParseThemes(raw string) ([]types.Theme, error) {
	const op = "structure.parse"

	var lastErr error = errNoJSON
	for _, candidate := range jsonCandidates(raw) {
		var doc any
		if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
			continue
		}
		if _, ok := doc.(map[string]any); !ok {
			continue
		}
		if err := themeSchema.Validate(doc); err != nil {
			lastErr = fmt.Errorf("output does not match schema: %w", err)
			continue
		}

		var out themeDoc
		if err := json.Unmarshal([]byte(candidate), &out); err != nil {
			lastErr = err
			continue
		}
		themes := make([]types.Theme, 0, len(out.Temas))
		for i, t := range out.Temas {
			order := int(t.Ordem)
			if order <= 0 {
				order = i + 1
			}
			themes = append(themes, types.Theme{
				Order:     order,
				Title:     strings.TrimSpace(t.Titulo),
				PageStart: int(t.PaginaInicial),
				PageEnd:   int(t.PaginaFinal),
				Subtopics: t.Subtopicos,
			})
		}
		return themes, nil
	}
	return nil, &fault.Error{Kind: fault.StructuringParse, Op: op, Err: lastErr}
}

type themeDoc struct {
	Temas []struct {
		Ordem         flexInt  `json:"ordem"`
		Titulo        string   `json:"titulo"`
		PaginaInicial flexInt  `json:"paginaInicial"`
		PaginaFinal   flexInt  `json:"paginaFinal"`
		Subtopicos    []string `json:"subtopicos"`
	} `json:"temas"`
}

// flexInt decodes a JSON number or a numeric string. Values outside the
// int32 range are rejected.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return fmt.Errorf("not a number: %s", b)
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return fmt.Errorf("number out of range: %s", b)
	}
	*f = flexInt(int(v))
	return nil
}

// jsonCandidates returns the distinct substrings of raw worth decoding.
func jsonCandidates(raw string) []string {
	raw = strings.TrimSpace(raw)
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(raw)
	fenced := stripCodeFences(raw)
	add(fenced)
	for _, src := range []string{fenced, raw} {
		if src == "" {
			continue
		}
		add(firstBalancedObject(src))
		if start, end := strings.Index(src, "{"), strings.LastIndex(src, "}"); start >= 0 && end > start {
			add(src[start : end+1])
		}
	}
	return out
}

// stripCodeFences returns the body of the first ``` block, or "" when raw
// has no fence.
func stripCodeFences(raw string) string {
	start := strings.Index(raw, "```")
	if start < 0 {
		return ""
	}
	body := raw[start+3:]
	// Drop the info string ("json").
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return ""
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// firstBalancedObject returns the first {...} span whose braces balance,
// ignoring braces inside JSON strings.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
