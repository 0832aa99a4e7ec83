package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Service selects which REST service a client talks to.
type Service int

const (
	// Primary is the CRM REST API.
	Primary Service = iota + 1
	// AI is the AI REST API (chat, OCR, voice). Calls tolerate longer latency.
	AI
)

func (s Service) String() string {
	switch s {
	case Primary:
		return "primary"
	case AI:
		return "ai"
	default:
		return "unknown"
	}
}

// Descriptor describes one outbound call. It is never modified after construction, so the same
// descriptor can be sent again after a credential refresh.
type Descriptor struct {
	// Service, when set, must match the client's service. Zero means any.
	Service     Service
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
}

// On returns a copy of d bound to service s.
func (d Descriptor) On(s Service) Descriptor {
	d.Service = s
	return d
}

// Get describes a GET of path with optional query parameters.
func Get(path string, query url.Values) Descriptor {
	return Descriptor{Method: http.MethodGet, Path: path, Query: query}
}

// Delete describes a DELETE of path.
func Delete(path string) Descriptor {
	return Descriptor{Method: http.MethodDelete, Path: path}
}

// JSON describes a call whose body is v encoded as JSON. A nil v sends no body.
func JSON(method, path string, v interface{}) (Descriptor, error) {
	d := Descriptor{Method: method, Path: path}
	if v == nil {
		return d, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Descriptor{}, fmt.Errorf("apiclient: encode %s %s: %w", method, path, err)
	}
	d.Body = b
	d.ContentType = "application/json"
	return d, nil
}

// FormField is a plain multipart field.
type FormField struct {
	Name  string
	Value string
}

// FormFile is a multipart file part.
type FormFile struct {
	Field    string
	Filename string
	Content  []byte
}

// Form is a multipart/form-data body. Parts are written in order, fields first.
type Form struct {
	Fields []FormField
	Files  []FormFile
}

// AddField appends a field and returns f.
func (f *Form) AddField(name, value string) *Form {
	f.Fields = append(f.Fields, FormField{Name: name, Value: value})
	return f
}

// AddFile appends a file part and returns f.
func (f *Form) AddFile(field, filename string, content []byte) *Form {
	f.Files = append(f.Files, FormFile{Field: field, Filename: filename, Content: content})
	return f
}

// Multipart describes a POST of form to path as multipart/form-data.
func Multipart(path string, form *Form) (Descriptor, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if form != nil {
		for _, fld := range form.Fields {
			if err := w.WriteField(fld.Name, fld.Value); err != nil {
				return Descriptor{}, fmt.Errorf("apiclient: write field %s: %w", fld.Name, err)
			}
		}
		for _, file := range form.Files {
			part, err := w.CreateFormFile(file.Field, file.Filename)
			if err != nil {
				return Descriptor{}, fmt.Errorf("apiclient: create file part %s: %w", file.Field, err)
			}
			if _, err := part.Write(file.Content); err != nil {
				return Descriptor{}, fmt.Errorf("apiclient: write file part %s: %w", file.Field, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Method:      http.MethodPost,
		Path:        path,
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
	}, nil
}
