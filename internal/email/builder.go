package email

import (
	"errors"
	"fmt"
	"html"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// BuildInput is everything needed to compose one outbound message.
// Attachments and Posters are shared across every message of a run and are
// only read, never modified.
type BuildInput struct {
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []string
	Posters     []string
	PosterURL   string
}

// Builder composes messages from rendered templates and staged files.
// It performs no network I/O.
type Builder struct {
	namespace uuid.UUID
	readFile  func(name string) ([]byte, error)
}

// NewBuilder creates a Builder whose inline Content-IDs are derived from
// namespace, so two builds with the same namespace and inputs are identical.
func NewBuilder(namespace uuid.UUID) *Builder {
	return &Builder{
		namespace: namespace,
		readFile:  os.ReadFile,
	}
}

// Build composes the message for one recipient. Missing attachment or poster
// files are skipped and reported as warnings; any other read failure is
// returned as an error.
func (b *Builder) Build(in BuildInput) (*Email, []*AttachmentMissing, error) {
	var warnings []*AttachmentMissing

	msg := &Email{
		To:      []string{in.To},
		From:    in.From,
		Subject: in.Subject,
	}

	for _, path := range in.Attachments {
		att, err := b.load(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				warnings = append(warnings, &AttachmentMissing{Path: path, Kind: "attachment"})
				continue
			}
			return nil, warnings, fmt.Errorf("failed to read attachment %s: %w", filepath.Base(path), err)
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	for i, path := range in.Posters {
		img, err := b.load(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				warnings = append(warnings, &AttachmentMissing{Path: path, Kind: "poster"})
				continue
			}
			return nil, warnings, fmt.Errorf("failed to read poster %s: %w", filepath.Base(path), err)
		}
		img.ContentID = b.contentID(i, img.Filename)
		msg.Inline = append(msg.Inline, img)
	}

	if len(in.Posters) > 0 {
		msg.HTMLBody = posterBody(msg.Inline, in.PosterURL, in.Body)
	} else {
		msg.HTMLBody = CleanBody(in.Body)
	}
	msg.TextBody = generatePlainText(msg.HTMLBody)

	return msg, warnings, nil
}

func (b *Builder) load(path string) (Attachment, error) {
	data, err := b.readFile(path)
	if err != nil {
		return Attachment{}, err
	}
	return Attachment{
		Filename:    filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Content:     data,
	}, nil
}

func (b *Builder) contentID(index int, filename string) string {
	return uuid.NewSHA1(b.namespace, []byte(fmt.Sprintf("%d/%s", index, filename))).String()
}

// posterBody places every inline poster above the rendered body, each linked
// to posterURL when one is given.
func posterBody(posters []Attachment, posterURL, body string) string {
	var blocks strings.Builder
	for _, p := range posters {
		img := fmt.Sprintf(`<img src="cid:%s" alt="Poster" style="max-width: 100%%; height: auto; display: block;">`, p.ContentID)
		if posterURL != "" {
			img = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(posterURL), img)
		}
		blocks.WriteString(img)
	}

	return fmt.Sprintf(`<html>
    <body style="line-height: 1.2;">
        %s
        %s
    </body>
</html>`, blocks.String(), body)
}
