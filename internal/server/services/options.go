// Package services implements account resolution, token lifecycle and token
// validation on top of the repositories.
package services

import (
	"time"

	"github.com/dmitrijs2005/usertokens/internal/common"
	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/logging"
	"github.com/dmitrijs2005/usertokens/internal/timex"
)

// DefaultIssueAttempts bounds value regeneration after a collision.
const DefaultIssueAttempts = 5

// TokenGenerator produces opaque token values.
type TokenGenerator func() (string, error)

type settings struct {
	clock         timex.Clock
	retry         dbx.RetryPolicy
	logger        logging.Logger
	generate      TokenGenerator
	issueAttempts int
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:         timex.UTCNow,
		retry:         dbx.DefaultRetryPolicy,
		logger:        logging.Nop{},
		generate:      common.NewTokenValue,
		issueAttempts: DefaultIssueAttempts,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func (s settings) now() time.Time {
	return timex.Normalize(s.clock())
}

// Option tweaks a service. The same options are accepted by every service
// in this package; options that do not apply are ignored.
type Option func(*settings)

func WithClock(c timex.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithRetryPolicy(p dbx.RetryPolicy) Option {
	return func(s *settings) { s.retry = p }
}

func WithLogger(l logging.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTokenGenerator replaces the crypto/rand backed generator. Tests use it
// to force collisions.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *settings) {
		if g != nil {
			s.generate = g
		}
	}
}

func WithIssueAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.issueAttempts = n
		}
	}
}
