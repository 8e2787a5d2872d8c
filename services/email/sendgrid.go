package emailsvc

import (
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/clubhub/core"
)

// maxInFlight bounds the concurrent calls to the sendgrid API.
const maxInFlight = 8

type sendgridService struct {
	from            *sgmail.Email
	subjPrefix      string
	appName         string
	frontendBaseURL string
	logger          core.Logger

	sendFunc func(*sgmail.SGMailV3) (*rest.Response, error)
	slots    chan struct{}
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridService{
		from:            sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		subjPrefix:      "[" + conf.AppName + "] ",
		appName:         conf.AppName,
		frontendBaseURL: conf.FrontendBaseURL,
		logger:          logger,
		sendFunc:        sendgrid.NewSendClient(conf.SendgridAPIKey).Send,
		slots:           make(chan struct{}, maxInFlight),
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			svc.slots <- struct{}{}
			defer func() { <-svc.slots }()
			svc.deliver(msg)
		}(msg)
	}
}

func (svc *sendgridService) deliver(msg *core.EmailMessage) {
	if err := msg.Render(svc.frontendBaseURL); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email %q", msg.TemplateName), err)
		return
	}
	if !(msg.HasRecipients() && msg.HasContent()) {
		return
	}

	res, err := svc.sendFunc(svc.build(*msg))
	switch {
	case err != nil:
		svc.logger.Error("sending email", err, map[string]interface{}{"template": msg.TemplateName})
	case res.StatusCode >= http.StatusBadRequest:
		svc.logger.Error(
			fmt.Sprintf("sendgrid rejected email: status %d", res.StatusCode),
			map[string]interface{}{"template": msg.TemplateName, "body": res.Body},
		)
	}
}

// build turns msg into a v3 mail: one personalization for all recipients,
// tagged with the app and template names so deliveries can be filtered in sendgrid.
func (svc *sendgridService) build(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	m.AddCategories(svc.appName)
	if msg.TemplateName != "" {
		m.AddCategories(msg.TemplateName)
	}
	return m
}
