package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON binds the request body into out and writes a structured 400 on
// failure. Field names in the error details are the JSON names, not the Go
// struct names.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	if err := ctx.ShouldBindJSON(out); err != nil {
		RespondBadRequest(ctx, "Invalid request body", bindErrorDetails(err, out))
		return false
	}

	return true
}

func bindErrorDetails(err error, out interface{}) interface{} {
	rootType := structTypeOf(out)

	var validationErrs validator.ValidationErrors

	if errors.As(err, &validationErrs) {
		fields := make([]FieldError, 0, len(validationErrs))

		for _, ve := range validationErrs {
			rule := ve.Tag()
			param := ve.Param()

			fields = append(fields, FieldError{
				Field:   jsonFieldPath(rootType, ve),
				Rule:    rule,
				Param:   param,
				Message: ruleMessage(rule, param),
			})
		}

		return gin.H{"fields": fields}
	}

	var syntaxErr *json.SyntaxError

	if errors.As(err, &syntaxErr) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	var typeErr *json.UnmarshalTypeError

	if errors.As(err, &typeErr) {
		field := translatePath(rootType, typeErr.Field)

		if field == "" {
			field = strings.TrimSpace(typeErr.Field)
		}

		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{
				{
					Field:   field,
					Rule:    "type",
					Message: fmt.Sprintf("must be of type %s", typeErr.Type.String()),
				},
			},
		}
	}

	return gin.H{"reason": err.Error()}
}

func structTypeOf(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t != nil && t.Kind() == reflect.Struct {
		return t
	}

	return nil
}

// jsonFieldPath maps a validator error onto the JSON path of the offending
// field. Namespace format is "<StructName>.<Field>[.<Nested>...]".
func jsonFieldPath(rootType reflect.Type, ve validator.FieldError) string {
	namespace := ve.StructNamespace()

	if namespace == "" {
		namespace = ve.Namespace()
	}

	if namespace == "" {
		return ve.Field()
	}

	parts := strings.Split(namespace, ".")

	if rootType != nil && len(parts) > 0 && parts[0] == rootType.Name() {
		parts = parts[1:]
	}

	if path := walkJSONPath(rootType, parts); path != "" {
		return path
	}

	return ve.Field()
}

func translatePath(rootType reflect.Type, dotPath string) string {
	dotPath = strings.TrimSpace(dotPath)

	if dotPath == "" {
		return ""
	}

	return walkJSONPath(rootType, strings.Split(dotPath, "."))
}

// walkJSONPath resolves each path segment against the struct's json tags,
// carrying slice indices like "items[2]" through untouched.
func walkJSONPath(rootType reflect.Type, parts []string) string {
	current := rootType
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}

		name, index := splitIndexSuffix(part)
		jsonName := name

		var next reflect.Type

		if current != nil {
			for current.Kind() == reflect.Pointer {
				current = current.Elem()
			}

			if current.Kind() == reflect.Struct {
				if sf, ok := current.FieldByName(name); ok {
					jsonName = jsonTagName(sf)
					next = elemType(sf.Type)
				}
			}
		}

		out = append(out, jsonName+index)
		current = next
	}

	return strings.Join(out, ".")
}

func splitIndexSuffix(part string) (string, string) {
	if i := strings.Index(part, "["); i >= 0 {
		return part[:i], part[i:]
	}

	return part, ""
}

func jsonTagName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")

	if name == "" || name == "-" {
		return sf.Name
	}

	return name
}

func elemType(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return t
		}
	}

	return nil
}

func ruleMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
