package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	// ErrEmptyPayload is returned when the model answered with no JSON payload at all.
	ErrEmptyPayload = errors.New("model returned no payload")
	// ErrInvalidPayload is returned when the payload does not match the declared output schema.
	ErrInvalidPayload = errors.New("model payload does not match the output schema")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ExtractJSON extracts a JSON document from a model answer that may be wrapped
// in a markdown code block or surrounded by prose. An answer that already is a
// valid JSON document is returned as is, backticks inside string values included.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	if json.Valid([]byte(response)) {
		return response
	}

	if !strings.HasPrefix(response, "{") {
		if content, ok := fenced(response); ok {
			return content
		}
	}

	// No code block, take the outermost object
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end < start {
		return response
	}
	return strings.TrimSpace(response[start : end+1])
}

// fenced returns the body of the code block opened by the first fence and closed
// by the last one, so fences inside the payload stay part of it.
func fenced(response string) (string, bool) {
	startIdx := strings.Index(response, "```")
	if startIdx == -1 {
		return "", false
	}
	rest := response[startIdx+3:]
	endIdx := strings.LastIndex(rest, "```")
	if endIdx == -1 {
		return "", false
	}
	content := strings.TrimSpace(rest[:endIdx])

	// Drop the language identifier if present (e.g. "json")
	if nl := strings.IndexByte(content, '\n'); nl != -1 {
		if first := strings.TrimSpace(content[:nl]); first == "" || strings.EqualFold(first, "json") {
			content = content[nl+1:]
		}
	} else if strings.EqualFold(content, "json") {
		content = ""
	}
	return strings.TrimSpace(content), true
}

// Decode validates a raw model answer against schema and unmarshals it into TOut.
//
// Members with a null value are dropped first, so an optional field returned as null
// is treated as absent. The result is then checked structurally against the schema
// definition and finally against the validate tags of TOut.
func Decode[TOut any](response string, schema Schema[TOut]) (TOut, error) {
	var out TOut

	payload := ExtractJSON(response)
	if payload == "" {
		return out, ErrEmptyPayload
	}

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	doc = pruneNulls(doc)
	if doc == nil {
		return out, ErrEmptyPayload
	}

	cleaned, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var decoded TOut
	if err := jsonschema.VerifySchemaAndUnmarshal(schema.Definition, cleaned, &decoded); err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, schema.Name, err)
	}
	if err := validate.Struct(decoded); err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, schema.Name, err)
	}
	return decoded, nil
}

func pruneNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if child == nil {
				delete(t, k)
				continue
			}
			t[k] = pruneNulls(child)
		}
		return t
	case []any:
		kept := t[:0]
		for _, child := range t {
			if child != nil {
				kept = append(kept, pruneNulls(child))
			}
		}
		return kept
	default:
		return v
	}
}
