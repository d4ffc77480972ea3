package repository

import (
	"encoding/json"
	"fmt"
)

// FieldKind is the component type of a template field.
type FieldKind string

const (
	FieldText      FieldKind = "text"
	FieldTextArea  FieldKind = "textarea"
	FieldSelect    FieldKind = "select"
	FieldRadio     FieldKind = "radio"
	FieldCheckbox  FieldKind = "checkbox"
	FieldDate      FieldKind = "date"
	FieldDateRange FieldKind = "date_range"
)

// FieldProps is the display and validation record of one field. The concrete
// type depends on the field kind.
type FieldProps interface {
	FieldLabel() string
	IsRequired() bool
	fieldProps()
}

// Option is one choice of a select, radio or checkbox field.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type baseProps struct {
	Label    string `json:"label"`
	Required bool   `json:"isRequired"`
}

func (p baseProps) FieldLabel() string { return p.Label }
func (p baseProps) IsRequired() bool   { return p.Required }
func (baseProps) fieldProps()          {}

type TextProps struct {
	baseProps
	Placeholder string `json:"placeholder,omitempty"`
}

type TextAreaProps struct {
	baseProps
	Placeholder string `json:"placeholder,omitempty"`
}

// ChoiceProps serves select, radio and checkbox fields.
type ChoiceProps struct {
	baseProps
	Options []Option `json:"options"`
}

// Allows reports whether v is one of the option values.
func (p ChoiceProps) Allows(v string) bool {
	for _, o := range p.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

type DateProps struct {
	baseProps
}

// DateRangeProps is answered with "<start>~<end>" text.
type DateRangeProps struct {
	baseProps
}

// NewTextProps and friends build props without exposing the embedded base.
func NewTextProps(label string, required bool) TextProps {
	return TextProps{baseProps: baseProps{Label: label, Required: required}}
}

func NewChoiceProps(label string, required bool, options ...Option) ChoiceProps {
	return ChoiceProps{baseProps: baseProps{Label: label, Required: required}, Options: options}
}

func NewDateRangeProps(label string, required bool) DateRangeProps {
	return DateRangeProps{baseProps: baseProps{Label: label, Required: required}}
}

// DecodeFieldProps parses a stored props object for the given kind.
func DecodeFieldProps(kind FieldKind, raw []byte) (FieldProps, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		props FieldProps
		err   error
	)
	switch kind {
	case FieldText:
		var p TextProps
		err = json.Unmarshal(raw, &p)
		props = p
	case FieldTextArea:
		var p TextAreaProps
		err = json.Unmarshal(raw, &p)
		props = p
	case FieldSelect, FieldRadio, FieldCheckbox:
		var p ChoiceProps
		err = json.Unmarshal(raw, &p)
		props = p
	case FieldDate:
		var p DateProps
		err = json.Unmarshal(raw, &p)
		props = p
	case FieldDateRange:
		var p DateRangeProps
		err = json.Unmarshal(raw, &p)
		props = p
	default:
		return nil, fmt.Errorf("unknown field kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s props: %w", kind, err)
	}
	return props, nil
}

// TemplateField is one ordered field of a template.
type TemplateField struct {
	SortOrder int
	Kind      FieldKind
	Props     FieldProps
}

type templateFieldJSON struct {
	SortOrder int             `json:"sort_order"`
	Kind      FieldKind       `json:"kind"`
	Props     json.RawMessage `json:"props"`
}

func (f TemplateField) MarshalJSON() ([]byte, error) {
	props, err := json.Marshal(f.Props)
	if err != nil {
		return nil, err
	}
	return json.Marshal(templateFieldJSON{SortOrder: f.SortOrder, Kind: f.Kind, Props: props})
}

func (f *TemplateField) UnmarshalJSON(data []byte) error {
	var raw templateFieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	props, err := DecodeFieldProps(raw.Kind, raw.Props)
	if err != nil {
		return err
	}
	*f = TemplateField{SortOrder: raw.SortOrder, Kind: raw.Kind, Props: props}
	return nil
}

// Template is a form definition read from the template store.
type Template struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Fields      []TemplateField `json:"fields"`
}

// Field returns the field with the given sort order.
func (t *Template) Field(sortOrder int) (TemplateField, bool) {
	for _, f := range t.Fields {
		if f.SortOrder == sortOrder {
			return f, true
		}
	}
	return TemplateField{}, false
}
