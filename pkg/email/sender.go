package email

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/pkg/config"
)

// Sender delivers email without blocking the caller. Failures are logged, never returned.
type Sender interface {
	SendAsync(to, subject, body string)
}

// Message is a rendered outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// NewSender picks the configured provider.
func NewSender(cfg config.EmailConfig, logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Provider) {
	case "sendgrid":
		if cfg.SendgridAPIKey != "" {
			return NewSendgridSender(cfg, logger)
		}
		logger.Warn("sendgrid selected without api key, falling back to log sender")
	}
	return NewLogSender(cfg.SubjectPrefix, logger)
}

// LogSender writes emails to the logger and keeps them for inspection.
type LogSender struct {
	prefix string
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogSender constructs a LogSender.
func NewLogSender(prefix string, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{prefix: prefix, logger: logger}
}

// SendAsync records the message synchronously; logging is cheap enough not to need a goroutine.
func (s *LogSender) SendAsync(to, subject, body string) {
	if strings.TrimSpace(to) == "" {
		return
	}
	msg := Message{To: to, Subject: s.prefix + subject, Body: body}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("email", zap.String("to", msg.To), zap.String("subject", msg.Subject))
}

// Sent returns a copy of every recorded message.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
