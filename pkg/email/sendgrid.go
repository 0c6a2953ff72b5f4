package email

import (
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/pkg/config"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridSender delivers mail through the SendGrid v3 API.
type SendgridSender struct {
	key    string
	from   *sgmail.Email
	prefix string
	logger *zap.Logger
}

// NewSendgridSender constructs a SendgridSender.
func NewSendgridSender(cfg config.EmailConfig, logger *zap.Logger) *SendgridSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendgridSender{
		key:    cfg.SendgridAPIKey,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		prefix: cfg.SubjectPrefix,
		logger: logger,
	}
}

// SendAsync posts the message on its own goroutine.
func (s *SendgridSender) SendAsync(to, subject, body string) {
	if to == "" {
		return
	}
	go s.send(to, subject, body)
}

func (s *SendgridSender) prepare(to, subject, body string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.prefix + subject
	p.AddTos(sgmail.NewEmail("", to))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", body))
	return m
}

func (s *SendgridSender) send(to, subject, body string) {
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(to, subject, body))

	res, err := sendgrid.API(req)
	if err != nil {
		s.logger.Warn("sending email failed", zap.String("to", to), zap.Error(err))
		return
	}
	if res.StatusCode >= http.StatusBadRequest {
		s.logger.Warn("sending email rejected", zap.String("to", to), zap.Int("status", res.StatusCode), zap.String("body", res.Body))
	}
}
