/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

const sessionCookieName = "secretsanta_session"

type session struct {
	name    string
	expires time.Time
}

// sessions maps login cookies to participant names. Logins are trusted as
// given: anyone may pick any name on the roster.
type sessions struct {
	cfg  *Config
	byID *xsync.Map[string, session]
}

func newSessions(cfg *Config) *sessions {
	return &sessions{
		cfg:  cfg,
		byID: xsync.NewMap[string, session](),
	}
}

func (s *sessions) login(w http.ResponseWriter, name string) {
	id := uuid.NewString()
	s.byID.Store(id, session{name: name, expires: time.Now().Add(s.cfg.sessionTimeout)})

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     s.cfg.prefix + "/",
		MaxAge:   int(s.cfg.sessionTimeout.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// current returns the participant logged in on r, if any.
func (s *sessions) current(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}

	sess, ok := s.byID.Load(c.Value)
	if !ok {
		return "", false
	}

	if time.Now().After(sess.expires) {
		s.byID.Delete(c.Value)

		return "", false
	}

	return sess.name, true
}

func (s *sessions) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		s.byID.Delete(c.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     s.cfg.prefix + "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sweep drops expired logins.
func (s *sessions) sweep(now time.Time) int {
	dropped := 0

	s.byID.Range(func(id string, sess session) bool {
		if now.After(sess.expires) {
			s.byID.Delete(id)
			dropped++
		}

		return true
	})

	return dropped
}
