package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// Validator: validation and sanitization of published payloads
type Validator struct {
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
}

func NewValidator() *Validator {
	// removes all HTML/scripts
	policy := bluemonday.StrictPolicy()

	return &Validator{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		sanitizer: policy,
	}
}

// ValidateAndSanitize: validates a payload against the schema for its kind and
// returns it with string fields sanitized and userId forced to the sender
func (v *Validator) ValidateAndSanitize(kind Kind, data json.RawMessage, userID string) (json.RawMessage, error) {
	if !AllowedKinds[kind] {
		return nil, fmt.Errorf("invalid message kind: %q (allowed kinds: draw, cursor, clear)", kind)
	}

	schema := schemaFor(kind)
	if schema == nil {
		return nil, fmt.Errorf("no schema found for message kind: %s", kind)
	}

	// clear carries no payload
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}

	if err := json.Unmarshal(data, schema); err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", kind, err)
	}

	if err := v.validate.Struct(schema); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return nil, formatValidationErrors(validationErrors)
		}
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", kind, err)
	}
	sanitized := v.sanitizeMap(fields)
	sanitized["kind"] = string(kind)
	sanitized["userId"] = v.SanitizeString(userID)

	out, err := json.Marshal(sanitized)
	if err != nil {
		return nil, fmt.Errorf("marshal sanitized payload: %w", err)
	}
	return out, nil
}

// ValidateMember: checks a roster entry and sanitizes its display fields
func (v *Validator) ValidateMember(m Member) (Member, error) {
	schema := memberSchema{ID: m.ID, DisplayName: m.DisplayName, Color: m.Color}
	if err := v.validate.Struct(schema); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return Member{}, formatValidationErrors(validationErrors)
		}
		return Member{}, fmt.Errorf("validation failed: %w", err)
	}

	return Member{
		ID:          v.sanitizeText(m.ID),
		DisplayName: v.sanitizeText(m.DisplayName),
		Color:       m.Color,
	}, nil
}

// SanitizeString strips any markup from s
func (v *Validator) SanitizeString(s string) string {
	return v.sanitizer.Sanitize(s)
}

// sanitizeText strips markup but keeps the literal characters. Roster fields
// are shown as plain text, so the policy's entity escaping would leak through
// as "&amp;".
func (v *Validator) sanitizeText(s string) string {
	return html.UnescapeString(v.sanitizer.Sanitize(s))
}

// sanitizeMap recursively sanitizes all string values in a map
func (v *Validator) sanitizeMap(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(data))

	for key, value := range data {
		result[key] = v.sanitizeValue(value)
	}

	return result
}

// sanitizeValue sanitizes a value based on its type
func (v *Validator) sanitizeValue(value interface{}) interface{} {
	switch val := value.(type) {
	case string:
		return v.sanitizer.Sanitize(val)
	case map[string]interface{}:
		return v.sanitizeMap(val)
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = v.sanitizeValue(item)
		}
		return result
	default:
		// numbers, bools and nil pass through
		return value
	}
}

// formatValidationErrors reports the first failing field
func formatValidationErrors(errs validator.ValidationErrors) error {
	return fmt.Errorf("validation failed: %s", formatSingleError(errs[0]))
}

func formatSingleError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "min", "max":
		return fmt.Sprintf("'%s' value out of allowed range", field)
	case "hexcolor":
		return fmt.Sprintf("'%s' must be a hex color", field)
	default:
		return fmt.Sprintf("'%s' is invalid", field)
	}
}
