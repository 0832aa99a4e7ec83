package crmapi

import (
	"context"
	"time"

	"resultmarketing-crm/client/internal/apiclient"
	"resultmarketing-crm/client/internal/contacts/domain"
)

// Chat is the assistant API. Conversations live on the primary service; direct queries,
// follow-up suggestions and categorisation go to the AI service.
type Chat struct {
	c  Doer
	ai Doer
}

// ChatReply is one assistant answer.
type ChatReply struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
}

// ChatMessage is one turn of a stored conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Conversation is a stored chat thread.
type Conversation struct {
	ID        string        `json:"id"`
	Title     string        `json:"title,omitempty"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	UpdatedAt time.Time     `json:"updated_at,omitzero"`
}

type sendRequest struct {
	Message        string                 `json:"message"`
	ConversationID *string                `json:"conversation_id"`
	Context        map[string]interface{} `json:"context"`
}

// Send posts message to the assistant. An empty conversationID starts a new conversation.
func (r *Chat) Send(ctx context.Context, message, conversationID string, chatContext map[string]interface{}) (*ChatReply, error) {
	req := sendRequest{Message: message, Context: chatContext}
	if conversationID != "" {
		req.ConversationID = &conversationID
	}
	if req.Context == nil {
		req.Context = map[string]interface{}{}
	}
	return post[ChatReply](ctx, r.c, "/chat", req)
}

func (r *Chat) Conversations(ctx context.Context) ([]Conversation, error) {
	return list[Conversation](ctx, r.c, "/chat/conversations", nil)
}

// History returns one conversation with its messages.
func (r *Chat) History(ctx context.Context, conversationID string) (*Conversation, error) {
	return get[Conversation](ctx, r.c, resource("/chat/conversations", conversationID), nil)
}

func (r *Chat) DeleteConversation(ctx context.Context, conversationID string) error {
	return exec(ctx, r.c, apiclient.Delete(resource("/chat/conversations", conversationID)))
}

// Query asks the AI service directly, with contacts as context.
func (r *Chat) Query(ctx context.Context, message string, contacts []domain.Contact) (*ChatReply, error) {
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	return post[ChatReply](ctx, r.ai, "/chat/query", map[string]interface{}{
		"message":          message,
		"contacts_context": contacts,
	})
}

// SuggestFollowUp asks the AI service for follow-up ideas for one contact.
func (r *Chat) SuggestFollowUp(ctx context.Context, contactID string) (*Raw, error) {
	return post[Raw](ctx, r.ai, "/chat/suggest-followup", map[string]string{"contact_id": contactID})
}

// Categorize asks the AI service to assign categories to contacts.
func (r *Chat) Categorize(ctx context.Context, contacts []domain.Contact) (*Raw, error) {
	return post[Raw](ctx, r.ai, "/chat/categorize", map[string]interface{}{"contacts": contacts})
}
