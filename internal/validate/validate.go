package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
)

const schemaURL = "plan_extraction.json"

// FieldError names the first offending field of a failed validation.
type FieldError struct {
	Path    string // dotted, e.g. "doors.total"; "" for the document root
	Message string
}

func (e *FieldError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed at %s: %s", e.Path, e.Message)
}

func (e *FieldError) Unwrap() error { return common.ErrValidation }

// Validator checks raw model output against the plan extraction schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the schema once.
func NewValidator() (*Validator, error) {
	b, err := json.Marshal(BuildPlanJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustNewValidator panics if the built-in schema does not compile.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate enforces the full schema and returns the canonical typed result.
func (v *Validator) Validate(raw map[string]any) (entity.ExtractionResult, error) {
	doc, err := canonical(raw)
	if err != nil {
		return entity.ExtractionResult{}, &FieldError{Message: err.Error()}
	}
	return v.validateCanonical(doc)
}

func (v *Validator) validateCanonical(doc map[string]any) (entity.ExtractionResult, error) {
	if err := v.schema.Validate(doc); err != nil {
		return entity.ExtractionResult{}, toFieldError(err)
	}

	b, err := json.Marshal(normalizeNumbers(doc))
	if err != nil {
		return entity.ExtractionResult{}, &FieldError{Message: err.Error()}
	}
	var out entity.ExtractionResult
	if err := json.Unmarshal(b, &out); err != nil {
		return entity.ExtractionResult{}, &FieldError{Message: fmt.Sprintf("decode: %v", err)}
	}
	out.EnsureSlices()
	return out, nil
}

// canonical deep-copies raw into plain JSON values (maps, []any, json.Number).
func canonical(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return nil, errors.New("document is null")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("not JSON-serializable: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeNumbers rewrites integral numbers such as 3.0 or 1e2 to their integer
// form so they decode into int fields.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	case json.Number:
		r, ok := new(big.Rat).SetString(t.String())
		if ok && r.IsInt() {
			return json.Number(r.Num().String())
		}
		return t
	default:
		return v
	}
}

var quotedName = regexp.MustCompile(`['"]([^'"]+)['"]`)

// toFieldError reduces a schema error to its deepest cause.
func toFieldError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &FieldError{Message: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	path := pointerToPath(leaf.InstanceLocation)
	msg := leaf.Message
	if strings.HasPrefix(msg, "missing propert") {
		if m := quotedName.FindStringSubmatch(msg); m != nil {
			path = joinPath(path, m[1])
		}
	}
	return &FieldError{Path: path, Message: msg}
}

func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}
