// Package handlers implements the HTTP endpoints of the enrollment service.
// Rate limiting, CSRF and authentication run as middleware before these
// handlers; see the router package for the order.
package handlers

import (
	"context"
	"time"

	"finlern/internal/auth"
	"finlern/internal/botdetect"
	"finlern/internal/logging"
	"finlern/internal/notify"
	"finlern/internal/pagination"
	"finlern/internal/ratelimit"
	"finlern/internal/repo"
	"finlern/internal/validate"
)

// EnrollmentStore is the append-only enrollment log.
type EnrollmentStore interface {
	Append(ctx context.Context, e *repo.Enrollment) error
	List(ctx context.Context, p pagination.Pager) ([]repo.Enrollment, int, error)
	ListAll(ctx context.Context) ([]repo.Enrollment, error)
}

// BotDetector screens honeypot signals.
type BotDetector interface {
	Evaluate(sig botdetect.Signal) (botdetect.Reason, bool)
	Profile() botdetect.Profile
}

type LimiterHealth interface {
	Health() ratelimit.Health
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Store    EnrollmentStore
	Notifier notify.Notifier
	Bots     BotDetector
	Limiter  LimiterHealth
	// DB is optional; health reports "disabled" without it.
	DB Pinger
	// Sessions is optional; without it CSRF tokens are not bound to a session.
	Sessions *auth.Sessions
	Logger   logging.Logger

	// Courses defaults to validate.Courses.
	Courses []string
	// MailTo receives enrollment notifications.
	MailTo string
	// MaxBodyBytes bounds the enrollment JSON body.
	MaxBodyBytes int64
	Now          func() time.Time
}

type Handlers struct {
	store    EnrollmentStore
	notifier notify.Notifier
	bots     BotDetector
	limiter  LimiterHealth
	db       Pinger
	sessions *auth.Sessions
	logger   logging.Logger

	courses []string
	mailTo  string
	maxBody int64
	now     func() time.Time
}

const defaultMaxBody = 64 << 10

func New(d Deps) *Handlers {
	h := &Handlers{
		store:    d.Store,
		notifier: d.Notifier,
		bots:     d.Bots,
		limiter:  d.Limiter,
		db:       d.DB,
		sessions: d.Sessions,
		logger:   d.Logger,
		courses:  d.Courses,
		mailTo:   d.MailTo,
		maxBody:  d.MaxBodyBytes,
		now:      d.Now,
	}
	if h.logger == nil {
		h.logger = logging.Nop()
	}
	h.logger = h.logger.WithComponent("handlers")
	if len(h.courses) == 0 {
		h.courses = validate.Courses
	}
	if h.maxBody <= 0 {
		h.maxBody = defaultMaxBody
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}
