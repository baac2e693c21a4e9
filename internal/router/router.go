// Package router classifies inbound emails and dispatches them to the
// newsletter, confirmation, PDF or generic path.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felo/inbox-library/internal/db"
	"github.com/felo/inbox-library/internal/library"
	"github.com/felo/inbox-library/internal/newsletters"
	"github.com/felo/inbox-library/internal/parser"
	"github.com/felo/inbox-library/internal/queue"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// DefaultFallbackTopic receives every message no specific path consumed
const DefaultFallbackTopic = "nonNewsletterEmailReceived"

// ErrUnknownRecipient is returned when no user owns the recipient address
var ErrUnknownRecipient = errors.New("unknown recipient")

// Path is the route a message took
type Path string

const (
	PathNewsletter   Path = "newsletter"
	PathConfirmation Path = "confirmation"
	PathPDF          Path = "pdf"
	PathGeneric      Path = "generic"
)

// State is where a message ended up
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateDone       State = "done"
	// StateQueued means a path failed and the message went to the fallback topic
	StateQueued State = "queued"
)

// Outcome is the result of routing one message
type Outcome struct {
	Path      Path
	State     State
	Items     []*db.LibraryItem
	Published bool  // sent to the fallback topic
	Err       error // path fault and/or publish failure
}

// Store resolves recipients and records received emails; *db.DB implements it
type Store interface {
	FindNewsletterEmail(ctx context.Context, address string) (*db.NewsletterEmail, error)
	CreateReceivedEmail(ctx context.Context, e *db.ReceivedEmail) (string, error)
}

// Saver is satisfied by *library.Pipeline
type Saver interface {
	SaveContent(ctx context.Context, req library.SaveRequest) (*db.LibraryItem, error)
}

// FallbackMessage is the payload published to the fallback topic
type FallbackMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Options configure a Router. Handler order is whatever Registry holds.
type Options struct {
	Registry *newsletters.Registry
	// ConfirmationSenders are addresses, or "@domain" suffixes, that send
	// subscription confirmation emails
	ConfirmationSenders []string
	Store               Store
	Saver               Saver
	Publisher           queue.Publisher
	FallbackTopic       string
	Logger              *logrus.Logger
}

// Router routes inbound messages
type Router struct {
	registry      *newsletters.Registry
	confirmations []string
	store         Store
	saver         Saver
	publisher     queue.Publisher
	fallbackTopic string
	logger        *logrus.Logger
}

// New creates a router
func New(opts Options) *Router {
	r := &Router{
		registry:      opts.Registry,
		store:         opts.Store,
		saver:         opts.Saver,
		publisher:     opts.Publisher,
		fallbackTopic: opts.FallbackTopic,
		logger:        opts.Logger,
	}
	if r.registry == nil {
		r.registry = newsletters.NewRegistry()
	}
	if r.fallbackTopic == "" {
		r.fallbackTopic = DefaultFallbackTopic
	}
	for _, s := range opts.ConfirmationSenders {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			r.confirmations = append(r.confirmations, s)
		}
	}
	return r
}

// pathResult is what a path hands back to Route
type pathResult struct {
	items    []*db.LibraryItem
	fallback bool
	err      error
}

// Route classifies msg and runs its path. The message is published to the
// fallback topic at most once, whenever the path asks for it or fails.
func (r *Router) Route(ctx context.Context, msg *parser.InboundMessage) Outcome {
	out := Outcome{State: StateReceived}
	log := r.logger.WithFields(logrus.Fields{
		"from":    msg.FromAddress(),
		"to":      msg.Recipient(),
		"subject": msg.Subject,
	})

	var handler newsletters.Handler
	out.Path, handler = r.classify(msg)
	out.State = StateClassified
	log = log.WithField("path", out.Path)

	res := r.runPath(ctx, out.Path, handler, msg)
	out.Items = res.items

	if res.err != nil {
		log.WithError(res.err).Error("Failed to process inbound email, sending to fallback topic")
		r.capture(res.err, out.Path, msg)
		res.fallback = true
	}

	if res.fallback {
		if err := r.publishFallback(ctx, msg); err != nil {
			log.WithError(err).Error("Failed to publish to fallback topic")
			r.capture(err, out.Path, msg)
			res.err = errors.Join(res.err, err)
		} else {
			out.Published = true
		}
	}

	out.Err = res.err
	out.State = StateDone
	if res.err != nil {
		out.State = StateQueued
	}
	log.WithField("state", out.State).Info("Routed inbound email")
	return out
}

func (r *Router) classify(msg *parser.InboundMessage) (Path, newsletters.Handler) {
	if h := r.registry.Select(newsletters.InputFor(msg)); h != nil {
		return PathNewsletter, h
	}
	if r.isConfirmation(msg.FromAddress()) {
		return PathConfirmation, nil
	}
	if len(pdfAttachments(msg)) > 0 {
		return PathPDF, nil
	}
	return PathGeneric, nil
}

// runPath turns a panic anywhere in a path into an error result
func (r *Router) runPath(ctx context.Context, path Path, h newsletters.Handler, msg *parser.InboundMessage) (res pathResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = pathResult{fallback: true, err: fmt.Errorf("%s path panicked: %v", path, rec)}
		}
	}()

	switch path {
	case PathNewsletter:
		return r.newsletterPath(ctx, h, msg)
	case PathConfirmation:
		return r.confirmationPath(ctx, msg)
	case PathPDF:
		return r.pdfPath(ctx, msg)
	default:
		return pathResult{fallback: true}
	}
}

func (r *Router) isConfirmation(from string) bool {
	for _, s := range r.confirmations {
		if from == s || (strings.HasPrefix(s, "@") && strings.HasSuffix(from, s)) {
			return true
		}
	}
	return false
}

func (r *Router) publishFallback(ctx context.Context, msg *parser.InboundMessage) error {
	if r.publisher == nil {
		return errors.New("no fallback publisher configured")
	}
	return r.publisher.Publish(ctx, r.fallbackTopic, FallbackMessage{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
}

func (r *Router) capture(err error, path Path, msg *parser.InboundMessage) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("path", string(path))
		scope.SetExtra("from", msg.FromAddress())
		scope.SetExtra("subject", msg.Subject)
		sentry.CaptureException(err)
	})
}

// resolveUser finds the user owning the message recipient
func (r *Router) resolveUser(ctx context.Context, msg *parser.InboundMessage) (*db.NewsletterEmail, error) {
	to := msg.Recipient()
	ne, err := r.store.FindNewsletterEmail(ctx, to)
	if err != nil {
		return nil, err
	}
	if ne == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecipient, to)
	}
	return ne, nil
}

func (r *Router) recordReceived(ctx context.Context, userID, kind string, msg *parser.InboundMessage) (string, error) {
	return r.store.CreateReceivedEmail(ctx, &db.ReceivedEmail{
		UserID:  userID,
		From:    msg.From,
		To:      msg.Recipient(),
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
		Kind:    kind,
	})
}

// Fallback publishes a message that could not be classified at all, such as
// an unparseable ingress payload
func (r *Router) Fallback(ctx context.Context, msg *parser.InboundMessage, cause error) Outcome {
	out := Outcome{Path: PathGeneric, State: StateQueued, Err: cause}
	log := r.logger.WithError(cause).WithField("path", out.Path)
	log.Warn("Inbound email could not be parsed, sending to fallback topic")

	if err := r.publishFallback(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to publish to fallback topic")
		r.capture(err, out.Path, msg)
		out.Err = errors.Join(cause, err)
		return out
	}
	out.Published = true
	return out
}
