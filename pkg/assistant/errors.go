package assistant

import (
	"net/http"

	"github.com/ryan12324/openassistant/pkg/errx"
)

var (
	assistantErrors = errx.NewRegistry("ASSISTANT")

	ErrInvalidPayload        = assistantErrors.Register("INVALID_PAYLOAD", errx.TypeValidation, http.StatusBadRequest, "Invalid job payload")
	ErrConversationNotFound  = assistantErrors.Register("CONVERSATION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Conversation not found")
	ErrConversationForbidden = assistantErrors.Register("CONVERSATION_FORBIDDEN", errx.TypeAuthorization, http.StatusForbidden, "Conversation belongs to another user")
	ErrRuntimeFailed         = assistantErrors.Register("RUNTIME_FAILED", errx.TypeExternal, http.StatusBadGateway, "Model runtime call failed")
	ErrEmptyReply            = assistantErrors.Register("EMPTY_REPLY", errx.TypeExternal, http.StatusBadGateway, "Model returned an empty reply")
)

// ConversationNotFound is the error ConversationStore implementations return for unknown ids.
func ConversationNotFound(id string) *errx.Error {
	return assistantErrors.New(ErrConversationNotFound).WithDetail("conversation_id", id)
}
