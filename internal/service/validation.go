package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pesio-ai/be-hr-leave-applications/internal/formvalue"
	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

const applicationSchemaURL = "https://schemas.pesio.ai/hr/leave/application.schema.json"

const applicationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["template_id", "status", "values"],
  "properties": {
    "template_id": {"type": "integer", "minimum": 1},
    "status": {"enum": ["draft", "pending"]},
    "values": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["sort_order", "value"],
        "properties": {
          "sort_order": {"type": "integer", "minimum": 1},
          "value": {"type": ["string", "number", "boolean"]}
        }
      }
    },
    "approvers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["step_order", "approver_id"],
        "properties": {
          "step_order": {"type": "integer", "minimum": 1},
          "approver_id": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

var applicationRequestSchema = mustCompileSchema(applicationSchemaURL, applicationSchema)

func mustCompileSchema(url, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("load schema %s: %v", url, err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", url, err))
	}
	return compiled
}

// ValueInput is one answer as sent by the client. Value is a decoded JSON
// scalar: string, number or boolean.
type ValueInput struct {
	SortOrder int `json:"sort_order"`
	Value     any `json:"value"`
}

// ApproverInput is one entry of an explicit approver chain.
type ApproverInput struct {
	StepOrder  int   `json:"step_order"`
	ApproverID int64 `json:"approver_id"`
}

// validateShape checks the request body against the application schema and
// returns a ValidationError listing every offending field.
func validateShape(templateID int64, status repository.ApplicationStatus, values []ValueInput, approvers []ApproverInput) error {
	doc := map[string]any{
		"template_id": float64(templateID),
		"status":      string(status),
		"values":      valuesDoc(values),
	}
	if approvers != nil {
		list := make([]any, 0, len(approvers))
		for _, a := range approvers {
			list = append(list, map[string]any{
				"step_order":  float64(a.StepOrder),
				"approver_id": float64(a.ApproverID),
			})
		}
		doc["approvers"] = list
	}

	err := applicationRequestSchema.Validate(doc)
	if err == nil {
		return checkUniqueSortOrders(values)
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return errors.Wrap(err, errors.ErrCodeInternal, "request validation failed")
	}
	return errors.Validation("request is invalid", schemaFieldErrors(ve))
}

func valuesDoc(values []ValueInput) []any {
	list := make([]any, 0, len(values))
	for _, v := range values {
		list = append(list, map[string]any{
			"sort_order": float64(v.SortOrder),
			"value":      normalizeScalar(v.Value),
		})
	}
	return list
}

// normalizeScalar maps Go numeric types onto the float64 the schema
// validator expects. Other values pass through unchanged.
func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}

func schemaFieldErrors(ve *jsonschema.ValidationError) []errors.FieldError {
	var fields []errors.FieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			fields = append(fields, errors.FieldError{
				Field:   instancePath(e.InstanceLocation),
				Message: e.Message,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return fields
}

// instancePath turns "/values/0/value" into "values.0.value".
func instancePath(loc string) string {
	loc = strings.TrimPrefix(loc, "/")
	if loc == "" {
		return "body"
	}
	return strings.ReplaceAll(loc, "/", ".")
}

func checkUniqueSortOrders(values []ValueInput) error {
	seen := make(map[int]bool, len(values))
	var fields []errors.FieldError
	for i, v := range values {
		if seen[v.SortOrder] {
			fields = append(fields, errors.FieldError{
				Field:   fmt.Sprintf("values.%d.sort_order", i),
				Message: fmt.Sprintf("sort_order %d is answered more than once", v.SortOrder),
			})
		}
		seen[v.SortOrder] = true
	}
	if len(fields) > 0 {
		return errors.Validation("request is invalid", fields)
	}
	return nil
}

// checkAgainstTemplate requires every answer to belong to a template field
// and, when submitting, every required field to be answered.
func checkAgainstTemplate(tpl *repository.Template, values []ValueInput, submitting bool) error {
	var fields []errors.FieldError
	answered := make(map[int]bool, len(values))

	for i, v := range values {
		answered[v.SortOrder] = true
		f, ok := tpl.Field(v.SortOrder)
		if !ok {
			fields = append(fields, errors.FieldError{
				Field:   fmt.Sprintf("values.%d.sort_order", i),
				Message: fmt.Sprintf("template %d has no field %d", tpl.ID, v.SortOrder),
			})
			continue
		}
		if choice, ok := f.Props.(repository.ChoiceProps); ok && f.Kind != repository.FieldCheckbox {
			if s, isString := v.Value.(string); isString && len(choice.Options) > 0 && s != "" && !choice.Allows(s) {
				fields = append(fields, errors.FieldError{
					Field:   fmt.Sprintf("values.%d.value", i),
					Message: fmt.Sprintf("%q is not an option of %s", s, choice.FieldLabel()),
				})
			}
		}
	}

	if submitting {
		for _, f := range tpl.Fields {
			if f.Props != nil && f.Props.IsRequired() && !answered[f.SortOrder] {
				fields = append(fields, errors.FieldError{
					Field:   fmt.Sprintf("values[sort_order=%d]", f.SortOrder),
					Message: fmt.Sprintf("%s is required", f.Props.FieldLabel()),
				})
			}
		}
	}

	if len(fields) > 0 {
		return errors.Validation("answers do not match the template", fields)
	}
	return nil
}

// routeFromApprovers validates an explicit approver chain: step orders must
// run 1..n without gaps or repeats.
func routeFromApprovers(approvers []ApproverInput) ([]repository.RouteStep, error) {
	route := make([]repository.RouteStep, len(approvers))
	for i, a := range approvers {
		route[i] = repository.RouteStep{StepOrder: a.StepOrder, ApproverID: a.ApproverID}
	}
	sort.SliceStable(route, func(i, j int) bool { return route[i].StepOrder < route[j].StepOrder })
	for i, rs := range route {
		if rs.StepOrder != i+1 {
			return nil, errors.InvalidInput("approvers", "step_order must run from 1 without gaps")
		}
	}
	return route, nil
}

// classifyValues runs the form value codec over the answers.
func classifyValues(values []ValueInput) []repository.ApplicationValue {
	out := make([]repository.ApplicationValue, 0, len(values))
	for _, v := range values {
		out = append(out, repository.ApplicationValue{
			SortOrder: v.SortOrder,
			Value:     formvalue.Classify(normalizeScalar(v.Value)),
		})
	}
	return out
}
