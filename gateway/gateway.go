// Package gateway is the single seam between the service and generative model providers.
//
// A provider only has to turn a Request into raw text. Invoke renders a typed prompt,
// calls the provider and decodes the answer against the declared output schema, so callers
// either get a fully valid TOut or an error.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/access-assistant/backend/metrics"
)

// Gateway is implemented by every model provider
type Gateway interface {
	// Generate sends one request and returns the raw model text.
	Generate(ctx context.Context, req Request) (string, error)
	// Name returns a short provider label (e.g. "gemini").
	Name() string
}

// Media is a binary attachment sent alongside the prompt text
type Media struct {
	MimeType string
	Data     []byte
}

// DataURI renders the attachment as data:<mime>;base64,<data>
func (m Media) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", m.MimeType, base64.StdEncoding.EncodeToString(m.Data))
}

// Request is the provider-neutral form of one model call
type Request struct {
	PromptID string
	System   string
	Prompt   string
	// Input is the JSON encoding of the typed prompt input.
	Input      json.RawMessage
	Media      []Media
	SchemaName string
	Schema     *jsonschema.Definition
}

// SystemText joins the system instruction with the declared output schema, for
// providers that cannot enforce a response schema natively
func (r Request) SystemText() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(r.System))
	if r.Schema != nil {
		schema, err := json.MarshalIndent(r.Schema, "", "  ")
		if err == nil {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString("Respond with a single JSON object and nothing else. It must conform to this JSON schema:\n")
			sb.Write(schema)
		}
	}
	return sb.String()
}

// UserText is the rendered prompt, or the raw JSON input when the prompt has no template
func (r Request) UserText() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return "Input:\n" + string(r.Input)
}

// Prompt is a named template over a typed input
type Prompt[TIn any] struct {
	ID     string
	System string
	Render func(TIn) string
	// Media optionally extracts attachments from the input.
	Media func(TIn) ([]Media, error)
}

// Schema declares the expected output structure for TOut
type Schema[TOut any] struct {
	Name       string
	Definition jsonschema.Definition
}

// Option configures a single Invoke call
type Option func(*invokeOptions)

type invokeOptions struct {
	logger log.Interface
}

// WithLogger sets the logger a call reports to. Calls without one use log.Log.
func WithLogger(logger log.Interface) Option {
	return func(o *invokeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Invoke runs prompt against gw with input and decodes the answer into TOut.
// Any provider error, empty payload or schema violation is returned as an error;
// there is no partial result and no retry.
func Invoke[TIn, TOut any](ctx context.Context, gw Gateway, prompt Prompt[TIn], input TIn, schema Schema[TOut], opts ...Option) (TOut, error) {
	var zero TOut

	o := invokeOptions{logger: log.Log}
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("failed to encode %s input: %w", prompt.ID, err)
	}

	req := Request{
		PromptID:   prompt.ID,
		System:     prompt.System,
		Input:      raw,
		SchemaName: schema.Name,
		Schema:     &schema.Definition,
	}
	if prompt.Render != nil {
		req.Prompt = prompt.Render(input)
	}
	if prompt.Media != nil {
		media, err := prompt.Media(input)
		if err != nil {
			return zero, fmt.Errorf("failed to prepare %s media: %w", prompt.ID, err)
		}
		req.Media = media
	}

	start := time.Now()
	logger := o.logger.WithFields(log.Fields{"prompt": prompt.ID, "provider": gw.Name()})
	observe := func(result string) {
		metrics.GatewayDurationSeconds.WithLabelValues(prompt.ID, gw.Name(), result).Observe(time.Since(start).Seconds())
	}

	text, err := gw.Generate(ctx, req)
	if err != nil {
		observe("provider_error")
		logger.WithError(err).WithDuration(time.Since(start)).Warn("model call failed")
		return zero, fmt.Errorf("%s via %s: %w", prompt.ID, gw.Name(), err)
	}

	out, err := Decode(text, schema)
	if err != nil {
		observe("invalid_payload")
		logger.WithError(err).WithDuration(time.Since(start)).Warn("model returned an invalid payload")
		return zero, fmt.Errorf("%s via %s: %w", prompt.ID, gw.Name(), err)
	}

	observe("ok")
	logger.WithDuration(time.Since(start)).Debug("model call completed")
	return out, nil
}
