package drafting

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vermietify/internal/domain"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var builtinSchemas embed.FS

// SchemaValidator is the rule-based validation pass: form_data is checked
// against the JSON schema registered for the submission's form type.
type SchemaValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewSchemaValidator loads the built-in schemas, then every *.json in dir
// (file name = form type), which override built-ins of the same name.
func NewSchemaValidator(dir string) (*SchemaValidator, error) {
	sources := map[string][]byte{}
	builtin, err := fs.Glob(builtinSchemas, "schemas/*.json")
	if err != nil {
		return nil, err
	}
	for _, name := range builtin {
		raw, err := builtinSchemas.ReadFile(name)
		if err != nil {
			return nil, err
		}
		sources[formTypeFromFile(name)] = raw
	}
	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read schema %s: %w", path, err)
			}
			sources[formTypeFromFile(path)] = raw
		}
	}
	return NewSchemaValidatorFromSources(sources)
}

func NewSchemaValidatorFromSources(sources map[string][]byte) (*SchemaValidator, error) {
	v := &SchemaValidator{schemas: make(map[string]*jsonschema.Schema, len(sources))}
	for formType, raw := range sources {
		compiler := jsonschema.NewCompiler()
		resource := formType + ".json"
		if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", formType, err)
		}
		schema, err := compiler.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", formType, err)
		}
		v.schemas[strings.ToLower(formType)] = schema
	}
	return v, nil
}

func (v *SchemaValidator) FormTypes() []string {
	out := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (v *SchemaValidator) Validate(ctx context.Context, sub domain.Submission) ([]domain.ValidationIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	schema, ok := v.schemas[strings.ToLower(sub.FormType)]
	if !ok {
		return []domain.ValidationIssue{{
			Field:    "form_type",
			Message:  "no rule set registered for form type " + sub.FormType,
			Severity: domain.SeverityWarning,
		}}, nil
	}
	raw, err := json.Marshal(sub.FormData)
	if err != nil {
		return nil, fmt.Errorf("encode form_data: %w", err)
	}
	if sub.FormData == nil {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode form_data: %w", err)
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil, nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, err
	}
	issues := []domain.ValidationIssue{}
	collectLeaves(verr, &issues)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Field < issues[j].Field })
	return issues, nil
}

func collectLeaves(verr *jsonschema.ValidationError, out *[]domain.ValidationIssue) {
	if len(verr.Causes) == 0 {
		*out = append(*out, domain.ValidationIssue{
			Field:    fieldFromPointer(verr.InstanceLocation),
			Message:  verr.Message,
			Severity: domain.SeverityError,
		})
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, out)
	}
}

func fieldFromPointer(pointer string) string {
	field := strings.TrimPrefix(pointer, "/")
	if field == "" {
		return "form_data"
	}
	return strings.ReplaceAll(field, "/", ".")
}

func formTypeFromFile(path string) string {
	return strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}
