// Package crmapi wraps the CRM REST services (primary and AI) in typed calls. Every call goes
// through an apiclient.Client, so an expired session is refreshed and the call replayed once.
package crmapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"resultmarketing-crm/client/internal/apiclient"
)

// Doer sends a descriptor to one service. *apiclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, d apiclient.Descriptor, out interface{}) error
	Service() apiclient.Service
}

// API groups the CRM resources. Fields are safe for concurrent use.
type API struct {
	Auth         *Auth
	Contacts     *Contacts
	Interactions *Interactions
	Reminders    *Reminders
	Chat         *Chat
	Uploads      *Uploads
	Voice        *Voice
	Payments     *Payments
	Dashboard    *Dashboard
	Health       *Health
}

// New returns an API that sends primary calls through primary and AI calls through ai.
func New(primary, ai Doer) *API {
	return &API{
		Auth:         &Auth{c: primary},
		Contacts:     &Contacts{c: primary},
		Interactions: &Interactions{c: primary},
		Reminders:    &Reminders{c: primary},
		Chat:         &Chat{c: primary, ai: ai},
		Uploads:      &Uploads{c: primary, ai: ai},
		Voice:        &Voice{ai: ai},
		Payments:     &Payments{c: primary},
		Dashboard:    &Dashboard{c: primary},
		Health:       &Health{c: primary, ai: ai},
	}
}

// File is an upload: a spreadsheet, namecard image or audio clip.
type File struct {
	Name    string
	Content []byte
}

// call sends d on c and decodes the response data into a new T.
func call[T any](ctx context.Context, c Doer, d apiclient.Descriptor) (*T, error) {
	out := new(T)
	if err := c.Do(ctx, d.On(c.Service()), out); err != nil {
		return nil, err
	}
	return out, nil
}

// exec sends d on c and discards the response data.
func exec(ctx context.Context, c Doer, d apiclient.Descriptor) error {
	return c.Do(ctx, d.On(c.Service()), nil)
}

// jsonCall sends body as JSON and decodes the response data into a new T.
func jsonCall[T any](ctx context.Context, c Doer, method, path string, body interface{}) (*T, error) {
	d, err := apiclient.JSON(method, path, body)
	if err != nil {
		return nil, err
	}
	return call[T](ctx, c, d)
}

func jsonExec(ctx context.Context, c Doer, method, path string, body interface{}) error {
	d, err := apiclient.JSON(method, path, body)
	if err != nil {
		return err
	}
	return exec(ctx, c, d)
}

// upload posts file (and fields) as multipart/form-data and decodes the response data into a new T.
func upload[T any](ctx context.Context, c Doer, path string, file File, fields ...apiclient.FormField) (*T, error) {
	form := &apiclient.Form{Fields: fields}
	form.AddFile("file", file.Name, file.Content)
	d, err := apiclient.Multipart(path, form)
	if err != nil {
		return nil, err
	}
	return call[T](ctx, c, d)
}

func get[T any](ctx context.Context, c Doer, path string, query url.Values) (*T, error) {
	return call[T](ctx, c, apiclient.Get(path, query))
}

func post[T any](ctx context.Context, c Doer, path string, body interface{}) (*T, error) {
	return jsonCall[T](ctx, c, http.MethodPost, path, body)
}

func put[T any](ctx context.Context, c Doer, path string, body interface{}) (*T, error) {
	return jsonCall[T](ctx, c, http.MethodPut, path, body)
}

func resource(base, id string) string {
	return base + "/" + url.PathEscape(id)
}

// Raw is response data whose shape is owned by the service.
type Raw = json.RawMessage
