package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/clubhub/fs"
)

const templatesDir = "templates/email"

var (
	mailTemplates    emailTemplates
	mailTemplatesErr error
	mailTemplatesRun sync.Once
)

type (
	// emailTemplates holds each template under its name, without extension.
	// Every template is parsed together with the _base of its kind and rendered through "base".
	emailTemplates struct {
		text map[string]*texttmpl.Template
		html map[string]*htmltmpl.Template
	}

	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData is what templates see: links back to the portal go through FrontendBaseURL.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent and HTMLContent from BodyStr or the named template.
// A template name without any .txt or .gohtml file is an error.
func (m *EmailMessage) Render(frontendBaseURL string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}

	mailTemplatesRun.Do(func() { mailTemplates, mailTemplatesErr = loadEmailTemplates(appfs.FS) })
	if mailTemplatesErr != nil {
		return mailTemplatesErr
	}

	txt, hasText := mailTemplates.text[m.TemplateName]
	html, hasHTML := mailTemplates.html[m.TemplateName]
	if !hasText && !hasHTML {
		return errors.Errorf("unknown email template %q", m.TemplateName)
	}

	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	var buff bytes.Buffer
	if hasText {
		if err := txt.ExecuteTemplate(&buff, "base", data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buff.String()
	}
	if hasHTML {
		buff.Reset()
		if err := html.ExecuteTemplate(&buff, "base", data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

func loadEmailTemplates(fsys fs.FS) (emailTemplates, error) {
	tmpls := emailTemplates{
		text: make(map[string]*texttmpl.Template),
		html: make(map[string]*htmltmpl.Template),
	}

	entries, err := fs.ReadDir(fsys, templatesDir)
	if err != nil {
		return tmpls, errors.Wrap(err, "reading email templates")
	}

	for _, e := range entries {
		fname := e.Name()
		if strings.HasPrefix(fname, "_") {
			continue
		}
		ext := path.Ext(fname)
		name := strings.TrimSuffix(fname, ext)
		base, fp := path.Join(templatesDir, "_base"+ext), path.Join(templatesDir, fname)

		switch ext {
		case ".txt":
			tmpl, err := texttmpl.New(fname).Option("missingkey=error").ParseFS(fsys, base, fp)
			if err != nil {
				return tmpls, errors.Wrapf(err, "parsing %s", fname)
			}
			tmpls.text[name] = tmpl
		case ".gohtml":
			tmpl, err := htmltmpl.New(fname).Option("missingkey=error").ParseFS(fsys, base, fp)
			if err != nil {
				return tmpls, errors.Wrapf(err, "parsing %s", fname)
			}
			tmpls.html[name] = tmpl
		}
	}
	return tmpls, nil
}
