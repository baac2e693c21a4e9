package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

// ErrPartTooLarge is returned when one ingress part exceeds maxPartSize
var ErrPartTooLarge = errors.New("ingress part too large")

// maxPartSize bounds a single field or attachment of the ingress payload.
// It matches the request limit of the HTTP handler.
var maxPartSize int64 = 50 << 20

// ParseIngress decodes the multipart payload posted by the mail transport.
// Text fields are from, to, subject, html, text and headers (a raw header
// block); any part carrying a filename is kept as an attachment.
func ParseIngress(r io.Reader, boundary string) (*InboundMessage, error) {
	if boundary == "" {
		return nil, fmt.Errorf("failed to parse ingress payload: missing boundary")
	}

	var h message.Header
	h.SetContentType("multipart/form-data", map[string]string{"boundary": boundary})
	entity, err := message.New(h, r)
	if err != nil {
		return nil, fmt.Errorf("failed to read ingress payload: %w", err)
	}

	mr := entity.MultipartReader()
	if mr == nil {
		return nil, fmt.Errorf("failed to parse ingress payload: not multipart")
	}

	msg := &InboundMessage{Headers: map[string]string{}}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ingress part: %w", err)
		}

		_, params, _ := part.Header.ContentDisposition()
		name := params["name"]
		data, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read ingress field %q: %w", name, err)
		}
		if int64(len(data)) > maxPartSize {
			return nil, fmt.Errorf("failed to read ingress field %q: %w", name, ErrPartTooLarge)
		}

		if filename := params["filename"]; filename != "" {
			contentType, _, _ := part.Header.ContentType()
			msg.Attachments = append(msg.Attachments, Attachment{
				ContentType: strings.ToLower(contentType),
				Filename:    filename,
				Data:        data,
			})
			continue
		}

		value := string(data)
		switch strings.ToLower(name) {
		case "from":
			msg.From = value
		case "to":
			msg.To = value
		case "subject":
			msg.Subject = value
		case "html":
			msg.HTML = value
		case "text":
			msg.Text = value
		case "headers":
			for k, v := range ParseHeaderBlock(value) {
				msg.Headers[k] = v
			}
		}
	}

	return msg, nil
}

// ParseHeaderBlock parses a raw "Key: value" header block into a lower-case
// keyed map. A malformed block yields whatever was readable before the error.
func ParseHeaderBlock(raw string) map[string]string {
	raw = strings.TrimRight(raw, "\r\n \t")
	if raw == "" {
		return map[string]string{}
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\n", "\r\n") + "\r\n\r\n"

	h, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		return parseHeaderLines(raw)
	}
	return headerMap(h)
}

// parseHeaderLines is the lenient path for blocks textproto rejects
func parseHeaderLines(raw string) map[string]string {
	headers := map[string]string{}
	for _, line := range strings.Split(raw, "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.ContainsAny(key, " \t") {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, exists := headers[key]; !exists && key != "" {
			headers[key] = decodeMIMEWord(strings.TrimSpace(value))
		}
	}
	return headers
}
