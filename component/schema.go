package component

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/c360/barstreams/errors"
)

// SchemaDirectives represents parsed schema tag directives
type SchemaDirectives struct {
	Type        string
	Description string
	Category    string // "basic" or "advanced"
	ReadOnly    bool
	Editable    bool
	Hidden      bool
	Default     any // raw tag text until GenerateConfigSchema converts it
	Required    bool
	Min         *int
	Max         *int
	Enum        []string
}

// PortFieldInfo describes metadata for PortDefinition fields
type PortFieldInfo struct {
	Type     string `json:"type"`
	Editable bool   `json:"editable"`
}

var schemaTypes = []string{"string", "int", "bool", "float", "enum", "array", "object", "ports"}

// ParseSchemaTag parses a schema struct tag. Directives are comma separated;
// key:value pairs and bare flags (readonly, editable, hidden, required) are
// accepted, enum values are pipe separated. The type directive is required.
//
//	schema:"type:int,description:Worker count,min:1,max:64,default:4"
//	schema:"type:enum,description:Output policy,enum:ALL|JSON|XML|DB,default:ALL"
func ParseSchemaTag(tag string) (SchemaDirectives, error) {
	var d SchemaDirectives
	if tag == "" {
		return d, errors.WrapInvalid(fmt.Errorf("empty schema tag"), "SchemaTag", "ParseSchemaTag", "tag validation")
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, ":")
		var err error
		if hasValue {
			err = d.setValue(strings.TrimSpace(key), strings.TrimSpace(value))
		} else {
			err = d.setFlag(part)
		}
		if err != nil {
			return d, err
		}
	}

	if d.Type == "" {
		return d, errors.WrapInvalid(
			fmt.Errorf("type directive is required"), "SchemaTag", "ParseSchemaTag", "required field validation")
	}
	return d, nil
}

func (d *SchemaDirectives) setFlag(flag string) error {
	switch flag {
	case "readonly":
		d.ReadOnly = true
	case "editable":
		d.Editable = true
	case "hidden":
		d.Hidden = true
	case "required":
		d.Required = true
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown boolean flag: %s", flag), "SchemaTag", "setFlag", "flag parsing")
	}
	return nil
}

func (d *SchemaDirectives) setValue(key, value string) error {
	if value == "" {
		return errors.WrapInvalid(
			fmt.Errorf("empty value for directive: %s", key), "SchemaTag", "setValue", "value validation")
	}

	switch key {
	case "type":
		if !slices.Contains(schemaTypes, value) {
			return errors.WrapInvalid(fmt.Errorf("invalid type: %s", value), "SchemaTag", "setValue", "type validation")
		}
		d.Type = value
	case "description":
		d.Description = value
	case "category":
		if value != "basic" && value != "advanced" {
			return errors.WrapInvalid(
				fmt.Errorf("invalid category: %s", value), "SchemaTag", "setValue", "category validation")
		}
		d.Category = value
	case "default":
		d.Default = value
	case "min", "max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("invalid %s value: %s", key, value), "SchemaTag", "setValue", key+" parsing")
		}
		if key == "min" {
			d.Min = &n
		} else {
			d.Max = &n
		}
	case "enum":
		d.Enum = strings.Split(value, "|")
		for i := range d.Enum {
			d.Enum[i] = strings.TrimSpace(d.Enum[i])
		}
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown directive: %s", key), "SchemaTag", "setValue", "directive validation")
	}
	return nil
}

// GenerateConfigSchema builds a ConfigSchema from the json and schema tags of
// a config struct. Fields without both tags, or with an unparsable schema
// tag, are skipped. Call it once at package init.
func GenerateConfigSchema(configType reflect.Type) ConfigSchema {
	schema := ConfigSchema{
		Properties: make(map[string]PropertySchema),
		Required:   []string{},
	}

	if configType.Kind() == reflect.Ptr {
		configType = configType.Elem()
	}
	if configType.Kind() != reflect.Struct {
		return schema
	}

	for i := 0; i < configType.NumField(); i++ {
		field := configType.Field(i)
		name := jsonFieldName(field)
		tag := field.Tag.Get("schema")
		if name == "" || tag == "" {
			continue
		}

		d, err := ParseSchemaTag(tag)
		if err != nil {
			continue
		}

		description := d.Description
		if description == "" {
			description = name
		}

		prop := PropertySchema{
			Type:        d.Type,
			Description: description,
			Category:    d.Category,
			Default:     convertDefault(d.Default, d.Type),
			Minimum:     d.Min,
			Maximum:     d.Max,
			Enum:        d.Enum,
		}
		if d.Type == "ports" {
			prop.PortFields = GeneratePortFieldSchema()
		}

		schema.Properties[name] = prop
		if d.Required {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

func jsonFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}

func convertDefault(value any, fieldType string) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	switch fieldType {
	case "int":
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		return nil
	case "bool":
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return nil
	case "float":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return nil
	case "array":
		return []string{s}
	case "object", "ports":
		return nil
	default:
		return s
	}
}

// GeneratePortFieldSchema reports which PortDefinition fields are editable.
func GeneratePortFieldSchema() map[string]PortFieldInfo {
	portType := reflect.TypeOf(PortDefinition{})
	fields := make(map[string]PortFieldInfo)

	for i := 0; i < portType.NumField(); i++ {
		field := portType.Field(i)
		name := jsonFieldName(field)
		if name == "" {
			continue
		}
		tag := field.Tag.Get("schema")
		if tag == "" {
			fields[name] = PortFieldInfo{Type: "string"}
			continue
		}
		d, err := ParseSchemaTag(tag)
		if err != nil {
			continue
		}
		fields[name] = PortFieldInfo{Type: d.Type, Editable: d.Editable}
	}

	return fields
}

// ValidationError represents a validation error for a specific field.
// Code is one of required, type, enum, min, max.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidateConfig checks a decoded JSON config against a schema. Unknown
// fields are allowed. An empty result means the config is valid.
func ValidateConfig(config map[string]any, schema ConfigSchema) []ValidationError {
	var problems []ValidationError

	for _, field := range schema.Required {
		if _, ok := config[field]; !ok {
			problems = append(problems, ValidationError{
				Field: field, Code: "required", Message: fmt.Sprintf("Field %q is required", field),
			})
		}
	}

	for field, value := range config {
		prop, ok := schema.Properties[field]
		if !ok {
			continue
		}
		if p := checkType(field, value, prop.Type); p != nil {
			problems = append(problems, *p)
			continue
		}
		if len(prop.Enum) > 0 {
			if s, _ := value.(string); !slices.Contains(prop.Enum, s) {
				problems = append(problems, ValidationError{
					Field: field, Code: "enum", Message: fmt.Sprintf("Field %q must be one of: %v", field, prop.Enum),
				})
			}
		}
		if n, numeric := toFloat(value); numeric && (prop.Type == "int" || prop.Type == "float") {
			if prop.Minimum != nil && n < float64(*prop.Minimum) {
				problems = append(problems, ValidationError{
					Field: field, Code: "min", Message: fmt.Sprintf("Field %q must be >= %d", field, *prop.Minimum),
				})
			}
			if prop.Maximum != nil && n > float64(*prop.Maximum) {
				problems = append(problems, ValidationError{
					Field: field, Code: "max", Message: fmt.Sprintf("Field %q must be <= %d", field, *prop.Maximum),
				})
			}
		}
	}

	slices.SortFunc(problems, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return problems
}

func checkType(field string, value any, typ string) *ValidationError {
	var ok bool
	var want string
	switch typ {
	case "string", "enum":
		_, ok = value.(string)
		want = "a string"
	case "int", "float":
		_, ok = toFloat(value)
		want = "a number"
	case "bool":
		_, ok = value.(bool)
		want = "a boolean"
	default:
		return nil
	}
	if ok {
		return nil
	}
	return &ValidationError{Field: field, Code: "type", Message: fmt.Sprintf("Field %q must be %s", field, want)}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
