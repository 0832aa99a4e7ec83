package crmapi

import (
	"context"
	"encoding/json"
	"fmt"

	"resultmarketing-crm/client/internal/apiclient"
	"resultmarketing-crm/client/internal/contacts/domain"
)

// Uploads is the spreadsheet and namecard import API.
type Uploads struct {
	c  Doer
	ai Doer
}

// UploadStatus reports a background import job.
type UploadStatus struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// UploadSpreadsheet sends a spreadsheet for import. With preview set the service only parses it.
func (r *Uploads) UploadSpreadsheet(ctx context.Context, f File, preview bool) (*Raw, error) {
	var fields []apiclient.FormField
	if preview {
		fields = append(fields, apiclient.FormField{Name: "preview", Value: "true"})
	}
	return upload[Raw](ctx, r.c, "/uploads/spreadsheet", f, fields...)
}

// ProcessSpreadsheet imports a spreadsheet using mapping from spreadsheet column to contact field.
func (r *Uploads) ProcessSpreadsheet(ctx context.Context, f File, mapping map[string]string) (*Raw, error) {
	b, err := json.Marshal(mapping)
	if err != nil {
		return nil, fmt.Errorf("crmapi: encode column mapping: %w", err)
	}
	return upload[Raw](ctx, r.c, "/uploads/spreadsheet/process", f, apiclient.FormField{Name: "column_mapping", Value: string(b)})
}

func (r *Uploads) UploadNamecard(ctx context.Context, f File) (*Raw, error) {
	return upload[Raw](ctx, r.c, "/uploads/namecard", f)
}

func (r *Uploads) Status(ctx context.Context, jobID string) (*UploadStatus, error) {
	return get[UploadStatus](ctx, r.c, resource("/uploads/status", jobID), nil)
}

// AnalyzeSpreadsheet asks the AI service to detect columns in a spreadsheet.
func (r *Uploads) AnalyzeSpreadsheet(ctx context.Context, f File) (*Raw, error) {
	return upload[Raw](ctx, r.ai, "/spreadsheet/analyze", f)
}

// ScanNamecard asks the AI service to read a namecard image.
func (r *Uploads) ScanNamecard(ctx context.Context, f File) (*Raw, error) {
	return upload[Raw](ctx, r.ai, "/namecard/scan", f)
}

// Voice is the AI service's voice-note API.
type Voice struct {
	ai Doer
}

// Transcription is the text of a voice note.
type Transcription struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe converts speech to text. An empty language lets the service detect it.
func (r *Voice) Transcribe(ctx context.Context, f File, language string) (*Transcription, error) {
	var fields []apiclient.FormField
	if language != "" {
		fields = append(fields, apiclient.FormField{Name: "language", Value: language})
	}
	return upload[Transcription](ctx, r.ai, "/voice/transcribe", f, fields...)
}

// Translate transcribes and translates to English.
func (r *Voice) Translate(ctx context.Context, f File) (*Transcription, error) {
	return upload[Transcription](ctx, r.ai, "/voice/translate", f)
}

// Extract pulls contact details and actions out of a voice note, matching against contacts.
func (r *Voice) Extract(ctx context.Context, f File, contacts []domain.Contact) (*Raw, error) {
	var fields []apiclient.FormField
	if len(contacts) > 0 {
		b, err := json.Marshal(contacts)
		if err != nil {
			return nil, fmt.Errorf("crmapi: encode contacts: %w", err)
		}
		fields = append(fields, apiclient.FormField{Name: "contacts_json", Value: string(b)})
	}
	return upload[Raw](ctx, r.ai, "/voice/extract", f, fields...)
}

// ToChat transcribes a spoken question and answers it.
func (r *Voice) ToChat(ctx context.Context, f File, chatContext string) (*ChatReply, error) {
	var fields []apiclient.FormField
	if chatContext != "" {
		fields = append(fields, apiclient.FormField{Name: "context", Value: chatContext})
	}
	return upload[ChatReply](ctx, r.ai, "/voice/chat", f, fields...)
}

// Formats lists the accepted audio formats.
func (r *Voice) Formats(ctx context.Context) (*Raw, error) {
	return get[Raw](ctx, r.ai, "/voice/formats", nil)
}
