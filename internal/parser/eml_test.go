package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newsletterEML = "From: Jane Writer <jane@substack.com>\r\n" +
	"To: reader@inbox.example.com\r\n" +
	"Subject: =?UTF-8?Q?Issue_=C3=A9t=C3=A9?=\r\n" +
	"Message-Id: <abc123@substack.com>\r\n" +
	"List-Post: <https://jane.substack.com/p/issue-ete>\r\n" +
	"List-Unsubscribe: <mailto:unsub@substack.com>, <https://jane.substack.com/unsub>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"plain text version\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><h1>Hello</h1></body></html>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQKJcfsj6IKMSAwIG9iago8PD4+CmVuZG9iagp0cmFpbGVyCjw8Pj4KJSVFT0YK\r\n" +
	"--outer--\r\n"

func TestParseEML_Newsletter(t *testing.T) {
	msg, err := ParseEML(strings.NewReader(newsletterEML))

	require.NoError(t, err, "Should parse newsletter email without error")
	assert.Equal(t, "Issue été", msg.Subject, "MIME-encoded subject should be decoded")
	assert.Equal(t, "jane@substack.com", msg.FromAddress())
	assert.Equal(t, "Jane Writer", msg.FromName())
	assert.Equal(t, "reader@inbox.example.com", msg.Recipient())
	assert.Equal(t, "abc123@substack.com", msg.MessageID())
	assert.Contains(t, msg.Text, "plain text version")
	assert.Contains(t, msg.HTML, "<h1>Hello</h1>")

	assert.Equal(t, "<https://jane.substack.com/p/issue-ete>", msg.Header("List-Post"))
	assert.Equal(t, msg.Header("list-post"), msg.Header("LIST-POST"), "header lookup is case-insensitive")

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "report.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.True(t, strings.HasPrefix(string(att.Data), "%PDF-1.4"), "attachment should be base64-decoded")
}

func TestParseEML_Windows1252Charset(t *testing.T) {
	raw := "From: sender@example.com\r\n" +
		"Subject: Charset\r\n" +
		"Content-Type: text/plain; charset=windows-1252\r\n" +
		"\r\n" +
		"caf\xe9\r\n"

	msg, err := ParseEML(strings.NewReader(raw))

	require.NoError(t, err)
	assert.Contains(t, msg.Text, "café")
}

func TestParseEMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newsletter.eml")
	require.NoError(t, os.WriteFile(path, []byte(newsletterEML), 0644))

	msg, err := ParseEMLFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Issue été", msg.Subject)

	_, err = ParseEMLFile(filepath.Join(t.TempDir(), "does-not-exist.eml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestRecipient_ForwardedToOverride(t *testing.T) {
	msg := &InboundMessage{To: "someone@gmail.com"}
	msg.SetHeader("X-Forwarded-To", "reader@inbox.example.com, someone@gmail.com")

	assert.Equal(t, "reader@inbox.example.com", msg.Recipient())
}

func TestDecodeMIMEWord(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "UTF-8 Quoted-Printable",
			input:    "=?UTF-8?Q?Invitaci=C3=B3n?=",
			expected: "Invitación",
		},
		{
			name:     "UTF-8 Base64",
			input:    "=?UTF-8?B?SW52aXRhY2nDs24=?=",
			expected: "Invitación",
		},
		{
			name:     "Plain text (no encoding)",
			input:    "Simple Subject",
			expected: "Simple Subject",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, decodeMIMEWord(tt.input))
		})
	}
}
