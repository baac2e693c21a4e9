package parser

import (
	"strings"

	"github.com/emersion/go-message/mail"
)

// InboundMessage is one received email, alive only for a single routing decision
type InboundMessage struct {
	From        string
	To          string
	Subject     string
	HTML        string
	Text        string
	Headers     map[string]string // keys are lower-case
	Attachments []Attachment
}

// Attachment is a binary part of an inbound message
type Attachment struct {
	ContentType string
	Filename    string
	Data        []byte
}

// Header returns the value of a header, case-insensitively
func (m *InboundMessage) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[strings.ToLower(name)]
}

// SetHeader stores a header under its lower-cased name
func (m *InboundMessage) SetHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[strings.ToLower(name)] = value
}

// Recipient returns the address the message was delivered for.
// x-forwarded-to overrides the To field.
func (m *InboundMessage) Recipient() string {
	to := m.Header("x-forwarded-to")
	if to == "" {
		to = m.To
	}
	// x-forwarded-to may carry several addresses; the first one is ours
	if i := strings.Index(to, ","); i >= 0 {
		to = to[:i]
	}
	return addressOnly(to)
}

// FromAddress returns the bare sender address
func (m *InboundMessage) FromAddress() string {
	return addressOnly(m.From)
}

// FromName returns the sender display name, or the address when there is none
func (m *InboundMessage) FromName() string {
	addr, err := mail.ParseAddress(m.From)
	if err != nil || addr.Name == "" {
		return addressOnly(m.From)
	}
	return addr.Name
}

// MessageID returns the Message-Id header without angle brackets
func (m *InboundMessage) MessageID() string {
	return strings.Trim(strings.TrimSpace(m.Header("message-id")), "<>")
}

func addressOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(s); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.Trim(s, "<> "))
}
