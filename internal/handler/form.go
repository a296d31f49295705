package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/courier/internal/domain"
	"github.com/dukerupert/courier/internal/storage"
)

// Accepted upload extensions. Other files are skipped, not rejected.
var (
	attachmentExts = map[string]bool{".pdf": true}
	posterExts     = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}
)

// sendForm is the text part of a send request.
type sendForm struct {
	SMTPServer      string `form:"smtp_server" validate:"required,hostname_rfc1123|ip"`
	Port            int    `form:"port" validate:"required,min=1,max=65535"`
	SenderEmail     string `form:"sender_email" validate:"required"`
	SenderPassword  string `form:"sender_password" validate:"required"`
	SMTPFrom        string `form:"smtp_from" validate:"required"`
	SubjectTemplate string `form:"subject_template" validate:"required"`
	BodyTemplate    string `form:"body_template" validate:"required"`
	PosterURL       string `form:"poster_url" validate:"omitempty,url"`
	IsTest          bool   `form:"is_test"`
	TestEmail       string `form:"test_email" validate:"required_if=IsTest true,omitempty,email"`
	RunID           string `form:"run_id" validate:"omitempty,max=64"`
}

var validationMessages = map[string]string{
	"required":            "This field is required",
	"required_if":         "This field is required",
	"min":                 "Value is too small",
	"max":                 "Value is too large",
	"email":               "Enter a valid email address",
	"url":                 "Enter a valid URL",
	"hostname_rfc1123|ip": "Enter a valid host name or IP address",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	return v
}

// parseSendForm reads and validates the text fields of r. The multipart form
// must already be parsed.
func parseSendForm(r *http.Request, v *validator.Validate) (sendForm, error) {
	const op = "handler.parseSendForm"

	form := sendForm{
		SMTPServer:      strings.TrimSpace(r.FormValue("smtp_server")),
		SenderEmail:     strings.TrimSpace(r.FormValue("sender_email")),
		SenderPassword:  r.FormValue("sender_password"),
		SMTPFrom:        strings.TrimSpace(r.FormValue("smtp_from")),
		SubjectTemplate: r.FormValue("subject_template"),
		BodyTemplate:    r.FormValue("body_template"),
		PosterURL:       strings.TrimSpace(r.FormValue("poster_url")),
		IsTest:          strings.EqualFold(r.FormValue("is_test"), "true"),
		TestEmail:       strings.TrimSpace(r.FormValue("test_email")),
		RunID:           strings.TrimSpace(r.FormValue("run_id")),
	}

	var err error
	if raw := strings.TrimSpace(r.FormValue("port")); raw != "" {
		port, perr := strconv.Atoi(raw)
		if perr != nil {
			err = domain.AddFieldError(err, "port", "Port must be a number")
		}
		form.Port = port
	}

	if verr := v.Struct(form); verr != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(verr, &fieldErrs) {
			return form, domain.Internal(verr, op, "failed to validate request")
		}
		for _, fe := range fieldErrs {
			if _, seen := domain.GetValidationFields(err)[fe.Field()]; seen {
				continue
			}
			err = domain.AddFieldError(err, fe.Field(), validationMessage(fe))
		}
	}

	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			ve.Op = op
		}
		return form, err
	}
	return form, nil
}

func validationMessage(fe validator.FieldError) string {
	if msg, ok := validationMessages[fe.Tag()]; ok {
		return msg
	}
	return fmt.Sprintf("Failed %s validation", fe.Tag())
}

// stageFiles saves every upload under field, or field+"[]", whose extension
// is in allowed and returns the stored paths in upload order.
func stageFiles(r *http.Request, field string, allowed map[string]bool, dir *storage.RunDir) (saved, skipped []string, err error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}
	files := append(slices.Clone(r.MultipartForm.File[field]), r.MultipartForm.File[field+"[]"]...)
	for _, fh := range files {
		if !allowed[strings.ToLower(filepath.Ext(fh.Filename))] {
			skipped = append(skipped, fh.Filename)
			continue
		}
		path, err := saveUpload(fh, dir)
		if err != nil {
			return nil, nil, err
		}
		saved = append(saved, path)
	}
	return saved, skipped, nil
}

func saveUpload(fh *multipart.FileHeader, dir *storage.RunDir) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return dir.Save(fh.Filename, f)
}
