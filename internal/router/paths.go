package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/felo/inbox-library/internal/content"
	"github.com/felo/inbox-library/internal/db"
	"github.com/felo/inbox-library/internal/library"
	"github.com/felo/inbox-library/internal/newsletters"
	"github.com/felo/inbox-library/internal/parser"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	xhtml "golang.org/x/net/html"
)

const pdfMIME = "application/pdf"

func (r *Router) newsletterPath(ctx context.Context, h newsletters.Handler, msg *parser.InboundMessage) pathResult {
	ne, err := r.resolveUser(ctx, msg)
	if err != nil {
		return pathResult{err: err}
	}
	receivedID, err := r.recordReceived(ctx, ne.UserID, db.ReceivedNonArticle, msg)
	if err != nil {
		return pathResult{err: err}
	}

	in := newsletters.InputFor(msg)
	meta := h.Metadata(in)

	url := h.ArticleURL(in)
	if url == "" {
		url = content.StubURL(stubKey(msg))
	}

	item, err := r.saver.SaveContent(ctx, library.SaveRequest{
		UserID:  ne.UserID,
		URL:     url,
		Content: messageBody(msg),
		Title:   msg.Subject,
		Author:  meta.Name,
		Newsletter: &library.Newsletter{
			Name:               meta.Name,
			UnsubscribeMailTo:  meta.UnsubscribeMailTo,
			UnsubscribeHTTPURL: meta.UnsubscribeHTTPURL,
			NewsletterEmailID:  ne.ID,
		},
		ReceivedEmailID: receivedID,
		Preprocess:      func(doc *xhtml.Node) error { return newsletters.Run(h, doc) },
		PreprocessName:  h.Name(),
	})
	if err != nil {
		return pathResult{err: err}
	}
	return pathResult{items: []*db.LibraryItem{item}}
}

var confirmationLink = regexp.MustCompile(`https://[^\s"'<>]*(?:confirm|verify|vf-)[^\s"'<>]*`)

func (r *Router) confirmationPath(ctx context.Context, msg *parser.InboundMessage) pathResult {
	ne, err := r.resolveUser(ctx, msg)
	if err != nil {
		return pathResult{err: err}
	}
	if _, err := r.recordReceived(ctx, ne.UserID, db.ReceivedConfirmation, msg); err != nil {
		return pathResult{err: err}
	}

	log := r.logger.WithFields(logrus.Fields{
		"user_id": ne.UserID,
		"from":    msg.FromAddress(),
	})
	if link := confirmationLink.FindString(msg.Text + "\n" + msg.HTML); link != "" {
		log.WithField("confirmation_url", html.UnescapeString(link)).Info("Received confirmation email")
	} else {
		log.Info("Received confirmation email without a confirmation link")
	}
	return pathResult{}
}

// pdfPath saves every PDF attachment as a file item. The message is always
// published to the fallback topic as well.
func (r *Router) pdfPath(ctx context.Context, msg *parser.InboundMessage) pathResult {
	res := pathResult{fallback: true}

	ne, err := r.resolveUser(ctx, msg)
	if err != nil {
		res.err = err
		return res
	}
	receivedID, err := r.recordReceived(ctx, ne.UserID, db.ReceivedNonArticle, msg)
	if err != nil {
		res.err = err
		return res
	}

	key := stubKey(msg)
	for i, att := range pdfAttachments(msg) {
		filename := att.Filename
		if filename == "" {
			filename = fmt.Sprintf("attachment-%d.pdf", i+1)
		}
		item, err := r.saver.SaveContent(ctx, library.SaveRequest{
			UserID:          ne.UserID,
			URL:             content.StubURL(fmt.Sprintf("%s/%d/%s", key, i, filename)),
			Title:           strings.TrimSuffix(filename, filepath.Ext(filename)),
			ItemType:        db.ItemTypeFile,
			Labels:          []string{db.LabelPDF},
			ReceivedEmailID: receivedID,
			File: &db.UploadedFile{
				UserID:      ne.UserID,
				Filename:    filename,
				ContentType: pdfMIME,
				Data:        att.Data,
			},
		})
		if err != nil {
			res.err = err
			return res
		}
		res.items = append(res.items, item)
	}
	return res
}

// pdfAttachments returns the attachments that are PDFs, by declared type or
// by content when the declared type is generic
func pdfAttachments(msg *parser.InboundMessage) []parser.Attachment {
	var out []parser.Attachment
	for _, att := range msg.Attachments {
		ct := strings.ToLower(strings.TrimSpace(att.ContentType))
		if i := strings.Index(ct, ";"); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
		if ct == pdfMIME || (len(att.Data) > 0 && mimetype.Detect(att.Data).Is(pdfMIME)) {
			out = append(out, att)
		}
	}
	return out
}

// stubKey identifies a message for its stub URL: the Message-Id when there
// is one, else a hash of sender, subject and both bodies
func stubKey(msg *parser.InboundMessage) string {
	if id := msg.MessageID(); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(msg.FromAddress() + "|" + msg.Subject + "|" + msg.Text + "|" + msg.HTML))
	return hex.EncodeToString(sum[:16])
}

func messageBody(msg *parser.InboundMessage) string {
	if strings.TrimSpace(msg.HTML) != "" {
		return msg.HTML
	}
	return "<pre>" + html.EscapeString(msg.Text) + "</pre>"
}
