// Package httpd serves the team authorization flow and the interactive
// message webhook.
package httpd

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/config"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/gateway"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/registry"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/store"
)

const slackAuthorizeURL = "https://slack.com/oauth/v2/authorize"

// Server handles /login, /oauth, /slack/receive and /healthz.
type Server struct {
	cfg      config.Config
	store    *store.Store
	registry *registry.Registry
	bus      *bus.MessageBus
	manager  *gateway.Manager
	client   *http.Client
}

// New creates the HTTP front door.
func New(cfg config.Config, st *store.Store, reg *registry.Registry, b *bus.MessageBus, mgr *gateway.Manager) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		registry: reg,
		bus:      b,
		manager:  mgr,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/oauth", s.handleOAuth)
	mux.HandleFunc("/slack/receive", s.handleInteraction)
	return mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.HTTP.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":       true,
		"sessions": s.registry.Len(),
	})
}

// handleLogin redirects the installer to Slack's authorization page.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	scopes := s.cfg.Slack.Scopes
	if len(scopes) == 0 {
		scopes = config.DefaultScopes
	}
	q := url.Values{}
	q.Set("client_id", s.cfg.Slack.ClientID)
	q.Set("scope", strings.Join(scopes, ","))
	if s.cfg.Slack.RedirectURL != "" {
		q.Set("redirect_uri", s.cfg.Slack.RedirectURL)
	}
	http.Redirect(w, r, slackAuthorizeURL+"?"+q.Encode(), http.StatusFound)
}

// handleOAuth completes the authorization flow: exchange the code, persist
// the team and bring its session online.
func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	resp, err := slack.GetOAuthV2Response(s.client, s.cfg.Slack.ClientID, s.cfg.Slack.ClientSecret, code, s.cfg.Slack.RedirectURL)
	if err != nil {
		slog.Error("oauth exchange failed", "error", err)
		http.Error(w, "Error: could not complete authorization", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	team := store.Team{
		ID:        resp.Team.ID,
		Name:      resp.Team.Name,
		BotToken:  resp.AccessToken,
		BotUserID: resp.BotUserID,
		CreatedBy: resp.AuthedUser.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.retireStaleSession(team.ID, team.BotToken)
	if err := s.store.SaveTeam(team); err != nil {
		slog.Error("could not save team", "team", team.ID, "error", err)
		http.Error(w, "Error: could not save team record", http.StatusInternalServerError)
		return
	}

	handle, err := s.manager.SpawnAndConnect(r.Context(), team)
	if err != nil {
		slog.Error("error connecting bot to Slack", "team", team.ID, "error", err)
		http.Error(w, "Error: could not connect bot to Slack", http.StatusInternalServerError)
		return
	}
	go s.manager.Greet(context.Background(), handle, team.CreatedBy)

	slog.Info("team authorized", "team", team.ID, "team_name", team.Name, "created_by", team.CreatedBy)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Success!")
}

// retireStaleSession tears down the session bound to a team's previous bot
// token. Re-authorization can rotate the token; the registry is token-keyed,
// so the old session would otherwise stay live and unreachable.
func (s *Server) retireStaleSession(teamID, newToken string) {
	prev, err := s.store.GetTeam(teamID)
	if err != nil || prev.BotToken == "" || prev.BotToken == newToken {
		return
	}
	slog.Info("retiring session for rotated token", "team", teamID)
	s.manager.Teardown(prev.BotToken)
}

// handleInteraction receives button clicks. The payload is verified against
// the signing secret, parsed, and published as an interactive event.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if err := verifySlackSignature(body, r.Header, s.cfg.Slack.SigningSecret, time.Now()); err != nil {
		http.Error(w, "invalid slack signature", http.StatusUnauthorized)
		return
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	cb, err := slack.InteractionCallbackParse(r)
	if err != nil {
		http.Error(w, "invalid interaction payload", http.StatusBadRequest)
		return
	}

	ev, err := s.inboundFromCallback(cb)
	if err != nil {
		// Answer 200 anyway so Slack does not retry a payload we can
		// never route.
		slog.Warn("dropping interaction", "team", cb.Team.ID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	s.bus.PublishInbound(ev)
	w.WriteHeader(http.StatusOK)
}

// inboundFromCallback maps an interaction payload onto the internal event
// shape. The session token comes from the stored team record.
func (s *Server) inboundFromCallback(cb slack.InteractionCallback) (*bus.InboundEvent, error) {
	team, err := s.store.GetTeam(cb.Team.ID)
	if err != nil {
		return nil, fmt.Errorf("team lookup: %w", err)
	}
	value := ""
	if len(cb.ActionCallback.AttachmentActions) > 0 && cb.ActionCallback.AttachmentActions[0] != nil {
		value = cb.ActionCallback.AttachmentActions[0].Value
	}
	return &bus.InboundEvent{
		Token:       team.BotToken,
		TeamID:      cb.Team.ID,
		Scope:       bus.ScopeInteractive,
		UserID:      cb.User.ID,
		ChannelID:   cb.Channel.ID,
		CallbackID:  cb.CallbackID,
		ActionValue: value,
		ResponseURL: cb.ResponseURL,
		TraceID:     uuid.NewString(),
		Timestamp:   time.Now(),
	}, nil
}

// verifySlackSignature checks the v0 request signature. An empty secret
// disables verification.
func verifySlackSignature(body []byte, h http.Header, secret string, now time.Time) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	ts := strings.TrimSpace(h.Get("X-Slack-Request-Timestamp"))
	sig := strings.TrimSpace(h.Get("X-Slack-Signature"))
	if ts == "" || sig == "" {
		return errors.New("missing slack signature headers")
	}
	tsNum, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return err
	}
	if delta := now.Sub(time.Unix(tsNum, 0)); delta > 5*time.Minute || delta < -5*time.Minute {
		return errors.New("slack signature timestamp out of range")
	}
	base := "v0:" + ts + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(base))
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return errors.New("slack signature mismatch")
	}
	return nil
}
