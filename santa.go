// Secret Santa
//
// Each participant picks their own name from the roster and draws a recipient
// from the shared pool. A drawn name leaves the pool, nobody can draw themselves,
// and drawing again shows the same recipient rather than a new one.
//
// Features:
// - Login by choosing a roster name; the session lives in a cookie
// - One draw per participant, repeat draws return the original result
// - Everyone sees how many names are left; only the coordinator sees who drew whom
// - Coordinator can download the assignment table and reset the game
// - Live counters over a websocket, full table pushed to the coordinator only
// - QR code of the game URL for sharing, backed by go-qrcode

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/secretsanta/santa"
)

type santaGame struct {
	cfg         *Config
	game        *santa.Game
	coordinator string
	sessions    *sessions
	hub         *Hub
	metrics     *santaMetrics
}

type loginRequest struct {
	Name string `json:"name"`
}

type rosterResponse struct {
	Participants []string `json:"participants"`
	Coordinator  string   `json:"coordinator,omitempty"`
}

type meResponse struct {
	Name        string `json:"name"`
	Coordinator bool   `json:"coordinator"`
	Recipient   string `json:"recipient,omitempty"`
}

type drawResponse struct {
	Recipient string `json:"recipient"`
}

type assignmentsResponse struct {
	santa.Status
	Pairs []santa.Pair `json:"pairs"`
}

func (sg *santaGame) isCoordinator(name string) bool {
	return sg.coordinator != "" && name == sg.coordinator
}

// participant returns the logged-in name or ErrNotLoggedIn.
func (sg *santaGame) participant(r *http.Request) (string, error) {
	name, ok := sg.sessions.current(r)
	if !ok {
		return "", ErrNotLoggedIn
	}

	return name, nil
}

func (sg *santaGame) requireCoordinator(r *http.Request) (string, error) {
	name, err := sg.participant(r)
	if err != nil {
		return "", err
	}

	if !sg.isCoordinator(name) {
		return "", fmt.Errorf("%w: %s", ErrNotCoordinator, name)
	}

	return name, nil
}

func (sg *santaGame) reply(w http.ResponseWriter, errs chan<- error, status int, v any) {
	if err := writeJSON(sg.cfg, w, status, v); err != nil {
		errs <- err
	}
}

func (sg *santaGame) fail(w http.ResponseWriter, errs chan<- error, err error) {
	if err := writeError(sg.cfg, w, err); err != nil {
		errs <- err
	}
}

func (sg *santaGame) serveRoster(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sg.reply(w, errs, http.StatusOK, rosterResponse{
			Participants: sg.game.Roster(),
			Coordinator:  sg.coordinator,
		})
	}
}

func (sg *santaGame) serveLogin(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req loginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			sg.reply(w, errs, http.StatusBadRequest, errorResponse{Error: "malformed login request"})
			return
		}

		if !sg.game.IsMember(req.Name) {
			sg.fail(w, errs, fmt.Errorf("%w: %q", santa.ErrUnknownParticipant, req.Name))
			return
		}

		sg.sessions.login(w, req.Name)

		logf(sg.cfg, "LOGIN: %q logged in from %s", req.Name, realIP(r))

		var recipient string
		if err := sg.game.Refresh(r.Context()); err != nil {
			logf(sg.cfg, "LOGIN: Could not reload game for %q: %v", req.Name, err)
		} else {
			recipient, _ = sg.game.Lookup(req.Name)
		}

		sg.reply(w, errs, http.StatusOK, meResponse{
			Name:        req.Name,
			Coordinator: sg.isCoordinator(req.Name),
			Recipient:   recipient,
		})
	}
}

func (sg *santaGame) serveLogout(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sg.sessions.logout(w, r)

		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(sg.cfg, w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (sg *santaGame) serveMe(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		name, err := sg.participant(r)
		if err != nil {
			sg.fail(w, errs, err)
			return
		}

		if err := sg.game.Refresh(r.Context()); err != nil {
			sg.fail(w, errs, err)
			return
		}

		recipient, _ := sg.game.Lookup(name)
		sg.reply(w, errs, http.StatusOK, meResponse{
			Name:        name,
			Coordinator: sg.isCoordinator(name),
			Recipient:   recipient,
		})
	}
}

func (sg *santaGame) serveDraw(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		name, err := sg.participant(r)
		if err != nil {
			sg.fail(w, errs, err)
			return
		}

		recipient, drawn, err := sg.game.Claim(r.Context(), name)
		sg.metrics.drawLatency.Observe(time.Since(startTime).Seconds())

		switch {
		case err == nil && drawn:
			sg.metrics.draws.WithLabelValues("drawn").Inc()
		case err == nil:
			sg.metrics.draws.WithLabelValues("repeat").Inc()
		case errors.Is(err, santa.ErrNoCandidate):
			sg.metrics.draws.WithLabelValues("no_candidate").Inc()
		case errors.Is(err, santa.ErrPersistence):
			sg.metrics.draws.WithLabelValues("persistence").Inc()
		default:
			sg.metrics.draws.WithLabelValues("error").Inc()
		}

		if err != nil {
			logf(sg.cfg, "DRAW: %q could not draw: %v", name, err)
			sg.fail(w, errs, err)
			return
		}

		st := sg.game.Status()
		sg.metrics.observe(st)

		if drawn {
			sg.hub.Notify()

			logf(sg.cfg, "DRAW: %q drew a recipient (%d of %d remaining) in %s",
				name,
				st.Remaining,
				st.Total,
				time.Since(startTime).Round(time.Microsecond),
			)
		}

		sg.reply(w, errs, http.StatusOK, drawResponse{Recipient: recipient})
	}
}

func (sg *santaGame) serveStatus(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := sg.game.Refresh(r.Context()); err != nil {
			sg.fail(w, errs, err)
			return
		}

		sg.reply(w, errs, http.StatusOK, sg.game.Status())
	}
}

func (sg *santaGame) serveAssignments(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if _, err := sg.requireCoordinator(r); err != nil {
			sg.fail(w, errs, err)
			return
		}

		if err := sg.game.Refresh(r.Context()); err != nil {
			sg.fail(w, errs, err)
			return
		}

		sg.reply(w, errs, http.StatusOK, assignmentsResponse{
			Status: sg.game.Status(),
			Pairs:  sg.game.Assignments(),
		})
	}
}

func (sg *santaGame) serveReport(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		if _, err := sg.requireCoordinator(r); err != nil {
			sg.fail(w, errs, err)
			return
		}

		if err := sg.game.Refresh(r.Context()); err != nil {
			sg.fail(w, errs, err)
			return
		}

		var buf bytes.Buffer
		if err := santa.WriteReport(&buf, sg.game.Assignments()); err != nil {
			sg.fail(w, errs, err)
			return
		}

		name := downloadHeaders(sg.cfg, w, "secret-santa", "txt", "text/plain; charset=utf-8")

		written, err := w.Write(buf.Bytes())
		if err != nil {
			errs <- err

			return
		}

		logf(sg.cfg, "SERVE: Report %s (%s) to %s in %s",
			name,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func (sg *santaGame) serveReset(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		name, err := sg.requireCoordinator(r)
		if err != nil {
			sg.fail(w, errs, err)
			return
		}

		if err := sg.game.Reset(r.Context()); err != nil {
			logf(sg.cfg, "RESET: %q could not reset the game: %v", name, err)
			sg.fail(w, errs, err)
			return
		}

		st := sg.game.Status()
		sg.metrics.resets.Inc()
		sg.metrics.observe(st)
		sg.hub.Notify()

		logf(sg.cfg, "RESET: %q reset the game from %s", name, realIP(r))

		sg.reply(w, errs, http.StatusOK, st)
	}
}

// serveQR renders a PNG QR code pointing at the game's home page.
func (sg *santaGame) serveQR(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr") + "/"

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(sg.cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

// sweepLoop periodically forgets expired logins.
func (sg *santaGame) sweepLoop(ctx context.Context) {
	interval := sg.cfg.sessionTimeout / 2
	interval = min(max(interval, time.Second), time.Hour)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := sg.sessions.sweep(now); n > 0 {
				logf(sg.cfg, "LOGIN: Expired %d sessions", n)
			}
		}
	}
}

// registerSantaGame sets up routes so that:
//   - $prefix/api/roster       → participant names for the login form
//   - $prefix/api/login|logout → session cookie for a roster name
//   - $prefix/api/me           → current participant and their recipient, if drawn
//   - $prefix/api/draw         → draw (or repeat) the participant's recipient
//   - $prefix/api/status       → total, claimed and remaining counts
//   - $prefix/api/assignments  → full table (coordinator only)
//   - $prefix/api/report       → table as a text download (coordinator only)
//   - $prefix/api/reset        → start over (coordinator only)
//   - $prefix/ws               → live counters
//   - $prefix/qr               → PNG QR code for the game URL
func registerSantaGame(ctx context.Context, cfg *Config, mux *httprouter.Router, game *santa.Game, coordinator string, metrics *santaMetrics, errs chan<- error) *santaGame {
	sg := &santaGame{
		cfg:         cfg,
		game:        game,
		coordinator: coordinator,
		sessions:    newSessions(cfg),
		hub:         newHub(ctx, game),
		metrics:     metrics,
	}

	metrics.observe(game.Status())

	go sg.hub.run()
	go sg.sweepLoop(ctx)

	mux.GET(cfg.prefix+"/api/roster", sg.serveRoster(errs))
	mux.POST(cfg.prefix+"/api/login", sg.serveLogin(errs))
	mux.POST(cfg.prefix+"/api/logout", sg.serveLogout(errs))
	mux.GET(cfg.prefix+"/api/me", sg.serveMe(errs))
	mux.POST(cfg.prefix+"/api/draw", sg.serveDraw(errs))
	mux.GET(cfg.prefix+"/api/status", sg.serveStatus(errs))
	mux.GET(cfg.prefix+"/api/assignments", sg.serveAssignments(errs))
	mux.GET(cfg.prefix+"/api/report", sg.serveReport(errs))
	mux.POST(cfg.prefix+"/api/reset", sg.serveReset(errs))

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, sg))
	mux.GET(cfg.prefix+"/qr", sg.serveQR(errs))

	return sg
}
