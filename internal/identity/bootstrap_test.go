package identity

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
)

const testKey = "test-signing-key"

type BootstrapSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestBootstrapSuite(t *testing.T) {
	suite.Run(t, new(BootstrapSuite))
}

func (s *BootstrapSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *BootstrapSuite) sign(claims jwt.Claims, key string) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	s.Require().NoError(err)
	return token
}

func (s *BootstrapSuite) TestNotReadyBeforeStart() {
	b := New("", NewVerifier(testKey, ""), s.logger)

	_, ok := b.Current()
	s.False(ok)
	select {
	case <-b.Ready():
		s.Fail("ready before start")
	default:
	}
}

func (s *BootstrapSuite) TestAnonymousWithoutToken() {
	b := New("", NewVerifier(testKey, ""), s.logger)
	b.Start(context.Background())

	<-b.Ready()
	id, ok := b.Current()
	s.Require().True(ok)
	s.True(id.Anonymous)
	s.True(strings.HasPrefix(id.UserID, "anon-"))
}

func (s *BootstrapSuite) TestTokenSignIn() {
	s.Run("subject claim", func() {
		token := s.sign(jwt.RegisteredClaims{
			Subject:   "editor-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}, testKey)
		b := New(token, NewVerifier(testKey, ""), s.logger)
		b.Start(context.Background())

		id, ok := b.Current()
		s.Require().True(ok)
		s.Equal(Identity{UserID: "editor-42"}, id)
	})

	s.Run("user_id claim", func() {
		token := s.sign(Claims{UserID: "desk-7"}, testKey)
		b := New(token, NewVerifier(testKey, ""), s.logger)
		b.Start(context.Background())

		id, _ := b.Current()
		s.Equal("desk-7", id.UserID)
		s.False(id.Anonymous)
	})
}

func (s *BootstrapSuite) TestFallsBackToAnonymous() {
	cases := map[string]struct {
		token    string
		verifier *Verifier
	}{
		"wrong key": {
			token:    s.sign(jwt.RegisteredClaims{Subject: "x"}, "other-key"),
			verifier: NewVerifier(testKey, ""),
		},
		"expired": {
			token:    s.sign(jwt.RegisteredClaims{Subject: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}, testKey),
			verifier: NewVerifier(testKey, ""),
		},
		"garbage": {
			token:    "not-a-jwt",
			verifier: NewVerifier(testKey, ""),
		},
		"no signing key": {
			token:    s.sign(jwt.RegisteredClaims{Subject: "x"}, testKey),
			verifier: NewVerifier("", ""),
		},
		"issuer mismatch": {
			token:    s.sign(jwt.RegisteredClaims{Subject: "x", Issuer: "elsewhere"}, testKey),
			verifier: NewVerifier(testKey, "copydesk"),
		},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			b := New(tc.token, tc.verifier, s.logger)
			b.Start(context.Background())

			id, ok := b.Current()
			s.Require().True(ok)
			s.True(id.Anonymous)
		})
	}
}

func (s *BootstrapSuite) TestRunTearsDownOnCancel() {
	b := New("", NewVerifier(testKey, ""), s.logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	<-b.Ready()
	_, ok := b.Current()
	s.True(ok)

	cancel()
	s.NoError(<-done)
	_, ok = b.Current()
	s.False(ok)
}

func (s *BootstrapSuite) TestVerifierRejectsMissingSubject() {
	_, err := NewVerifier(testKey, "").UserID(s.sign(jwt.RegisteredClaims{}, testKey))
	s.ErrorIs(err, ErrNoSubject)
}
