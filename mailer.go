package auth

import (
	"context"
	"strings"
)

// Message is one outbound notification. Content is a plain-text template
// with {field} placeholders; Render substitutes the named fields.
type Message struct {
	To      string
	Subject string
	Content string
	Fields  map[string]string
}

// NewMessage builds a message with an empty field set.
func NewMessage(to, subject, content string) *Message {
	return &Message{
		To:      to,
		Subject: subject,
		Content: content,
		Fields:  map[string]string{},
	}
}

// Set assigns a template field.
func (m *Message) Set(key, value string) *Message {
	if m.Fields == nil {
		m.Fields = map[string]string{}
	}
	m.Fields[key] = value
	return m
}

// Render substitutes the fields into the content template. Unknown
// placeholders are left as written.
func (m *Message) Render() string {
	if len(m.Fields) == 0 {
		return m.Content
	}

	pairs := make([]string, 0, len(m.Fields)*2)
	for key, value := range m.Fields {
		pairs = append(pairs, "{"+key+"}", value)
	}

	return strings.NewReplacer(pairs...).Replace(m.Content)
}

// LoggerMailer writes rendered messages to the logger instead of sending
// them. Useful in development and as the safe default.
type LoggerMailer struct {
	logger Logger
}

var _ Mailer = (*LoggerMailer)(nil)

func NewLoggerMailer(logger Logger) *LoggerMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LoggerMailer{logger: logger}
}

func (m *LoggerMailer) Send(_ context.Context, msg *Message) error {
	m.logger.Info("mail to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Render())
	return nil
}

// NoopMailer drops every message.
type NoopMailer struct{}

var _ Mailer = (*NoopMailer)(nil)

func (NoopMailer) Send(context.Context, *Message) error {
	return nil
}
