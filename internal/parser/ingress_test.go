package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBoundary = "xYzZY"

func ingressPayload(fields map[string]string, files ...[3]string) string {
	var b strings.Builder
	for _, name := range []string{"from", "to", "subject", "html", "text", "headers"} {
		value, ok := fields[name]
		if !ok {
			continue
		}
		b.WriteString("--" + testBoundary + "\r\n")
		b.WriteString("Content-Disposition: form-data; name=\"" + name + "\"\r\n\r\n")
		b.WriteString(value + "\r\n")
	}
	for _, f := range files {
		b.WriteString("--" + testBoundary + "\r\n")
		b.WriteString("Content-Disposition: form-data; name=\"attachment1\"; filename=\"" + f[0] + "\"\r\n")
		b.WriteString("Content-Type: " + f[1] + "\r\n\r\n")
		b.WriteString(f[2] + "\r\n")
	}
	b.WriteString("--" + testBoundary + "--\r\n")
	return b.String()
}

func TestParseIngress(t *testing.T) {
	payload := ingressPayload(map[string]string{
		"from":    "Morning Brew <crew@morningbrew.com>",
		"to":      "reader@inbox.example.com",
		"subject": "Today's brew",
		"html":    "<p>Coffee</p>",
		"text":    "Coffee",
		"headers": "List-Unsubscribe: <https://morningbrew.com/unsub>\r\nX-Forwarded-To: other@inbox.example.com\r\nMessage-Id: <m1@brew>",
	}, [3]string{"deck.pdf", "application/pdf", "%PDF-1.7 body"})

	msg, err := ParseIngress(strings.NewReader(payload), testBoundary)

	require.NoError(t, err)
	assert.Equal(t, "crew@morningbrew.com", msg.FromAddress())
	assert.Equal(t, "Today's brew", msg.Subject)
	assert.Equal(t, "<p>Coffee</p>", msg.HTML)
	assert.Equal(t, "Coffee", msg.Text)
	assert.Equal(t, "<https://morningbrew.com/unsub>", msg.Header("list-unsubscribe"))
	assert.Equal(t, "other@inbox.example.com", msg.Recipient(), "x-forwarded-to overrides to")
	assert.Equal(t, "m1@brew", msg.MessageID())

	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "deck.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, "%PDF-1.7 body", string(msg.Attachments[0].Data))
}

func TestParseIngress_MissingBoundary(t *testing.T) {
	_, err := ParseIngress(strings.NewReader("anything"), "")
	assert.Error(t, err)
}

func TestParseHeaderBlock(t *testing.T) {
	headers := ParseHeaderBlock("List-Post: <mailto:list@example.com>\nSubject: folded\n continued line\n")

	assert.Equal(t, "<mailto:list@example.com>", headers["list-post"])
	assert.Contains(t, headers["subject"], "folded")
	assert.Contains(t, headers["subject"], "continued line")

	assert.Empty(t, ParseHeaderBlock(""))
}

func TestParseIngress_OversizePartIsRejected(t *testing.T) {
	defer func(old int64) { maxPartSize = old }(maxPartSize)
	maxPartSize = 16

	fits := ingressPayload(map[string]string{"subject": "s"}, [3]string{"ok.pdf", "application/pdf", strings.Repeat("a", 16)})
	msg, err := ParseIngress(strings.NewReader(fits), testBoundary)
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.Len(t, msg.Attachments[0].Data, 16)

	big := ingressPayload(map[string]string{"subject": "s"}, [3]string{"big.pdf", "application/pdf", strings.Repeat("a", 17)})
	msg, err = ParseIngress(strings.NewReader(big), testBoundary)
	assert.ErrorIs(t, err, ErrPartTooLarge)
	assert.Nil(t, msg, "an oversize attachment is never kept truncated")

	longText := ingressPayload(map[string]string{"text": strings.Repeat("b", 40)})
	_, err = ParseIngress(strings.NewReader(longText), testBoundary)
	assert.ErrorIs(t, err, ErrPartTooLarge)
}
