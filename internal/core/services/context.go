package services

import (
	"context"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

// Use a private type for context keys to avoid collisions
type serviceContextKey string

const (
	ctxKeyConversationID serviceContextKey = "conversation_id"
)

// ContextWithConversation injects the ConversationID into the context so tools
// can attach deferred results to the right transcript.
func ContextWithConversation(ctx context.Context, id domain.ConversationID) context.Context {
	return context.WithValue(ctx, ctxKeyConversationID, id)
}

// ConversationFromContext retrieves the ConversationID from the context
func ConversationFromContext(ctx context.Context) (domain.ConversationID, bool) {
	id, ok := ctx.Value(ctxKeyConversationID).(domain.ConversationID)
	return id, ok && id != ""
}
