// Package genai composes prompts and turns generative-backend responses into
// reviewed draft replies. Backend failures never propagate: the generator
// degrades to a fixed fallback result the agent can recognize.
package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mailcoach/internal/models"
)

// FallbackReply is the fixed safe reply used when the backend fails.
const FallbackReply = "I am sorry, I could not generate a reply due to an internal error."

// justificationMarker splits the backend response into reply and
// justification.
const justificationMarker = "Justification:"

// defaultConfidence is used when the backend provides no explicit score.
const defaultConfidence = 0.6

// Backend is the generative capability contract: one prompt in, free text
// out, failures surfaced as errors rather than crashes.
type Backend interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// Request carries everything that goes into one draft generation.
type Request struct {
	ThreadText string
	KBContext  string
	Tone       models.Tone
	Sentiment  models.Sentiment
	Urgency    bool
}

// Result is the structured outcome of a generation attempt. Fallback is true
// when the backend failed and the fixed safe reply was substituted; ErrDetail
// then carries the failure reason for the justification trail.
type Result struct {
	ReplyText     string
	Justification string
	Confidence    float64
	Fallback      bool
	ErrDetail     string
}

// Generator produces draft replies.
type Generator struct {
	backend Backend
	logger  zerolog.Logger
}

// NewGenerator creates a draft generator over the given backend.
func NewGenerator(backend Backend, logger zerolog.Logger) *Generator {
	return &Generator{
		backend: backend,
		logger:  logger.With().Str("component", "genai").Logger(),
	}
}

// Generate invokes the backend exactly once; retries, if any, belong to the
// orchestration layer. On any backend error it returns the fallback result
// with confidence 0 rather than an error.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	prompt := composePrompt(req)

	text, err := g.backend.Complete(ctx, prompt, 1024, 0.7)
	if err != nil {
		g.logger.Error().Err(err).Msg("generation failed, using fallback reply")
		return Result{
			ReplyText:     FallbackReply,
			Justification: fmt.Sprintf("generative backend error: %v", err),
			Confidence:    0.0,
			Fallback:      true,
			ErrDetail:     err.Error(),
		}
	}

	reply, justification := splitJustification(text)
	return Result{
		ReplyText:     reply,
		Justification: justification,
		Confidence:    defaultConfidence,
	}
}

func composePrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are an empathetic AI email assistant. Given the email thread, context, ")
	b.WriteString("sentiment, urgency and tone, generate a professional, empathetic reply. ")
	b.WriteString("Also provide a short justification explaining why this reply is appropriate, ")
	b.WriteString("prefixed with \"Justification:\".\n\n")
	fmt.Fprintf(&b, "Thread:\n%s\n\n", req.ThreadText)
	fmt.Fprintf(&b, "Context:\n%s\n\n", req.KBContext)
	fmt.Fprintf(&b, "Sentiment: %s\nUrgency: %t\nTone: %s\n\n", req.Sentiment, req.Urgency, req.Tone)
	b.WriteString("Reply:")
	return b.String()
}

// splitJustification separates the reply from the justification on the fixed
// marker. When the marker is absent the whole response is the reply.
func splitJustification(text string) (reply, justification string) {
	parts := strings.SplitN(text, justificationMarker, 2)
	reply = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		justification = strings.TrimSpace(parts[1])
	}
	return reply, justification
}
