package http

import (
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"fils-quiz-bot/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	sessionCookie  = "admin_session"
	usersPageSize  = 50
	broadcastLimit = 8
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// AdminStore is the read side of persistence used by the dashboard.
type AdminStore interface {
	ListUsers(ctx context.Context, limit, offset int) ([]domain.UserSummary, error)
	UserIDs(ctx context.Context) ([]int64, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// LeadSource streams captured leads (app.LeadFeed).
type LeadSource interface {
	Recent() []domain.Lead
	Subscribe() (<-chan domain.Lead, func())
}

// TextSender sends a plain text chat message.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
}

// Dashboard is the password-protected operator UI.
type Dashboard struct {
	store      AdminStore
	leads      LeadSource
	sender     TextSender
	password   string
	secret     []byte
	sessionTTL time.Duration
	reload     func(ctx context.Context) (domain.Quiz, error)
	logger     *zap.Logger
	now        func() time.Time
	upgrader   websocket.Upgrader
}

type DashboardConfig struct {
	Password      string
	SessionSecret string
	SessionTTL    time.Duration
	// Reload re-reads quiz content and drops cached copies. Nil disables the endpoint.
	Reload func(ctx context.Context) (domain.Quiz, error)
}

func NewDashboard(cfg DashboardConfig, store AdminStore, leads LeadSource, sender TextSender, logger *zap.Logger) (*Dashboard, error) {
	if cfg.Password == "" || cfg.SessionSecret == "" {
		return nil, errors.New("dashboard needs a password and a session secret")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	return &Dashboard{
		store:      store,
		leads:      leads,
		sender:     sender,
		password:   cfg.Password,
		secret:     []byte(cfg.SessionSecret),
		sessionTTL: cfg.SessionTTL,
		reload:     cfg.Reload,
		logger:     logger,
		now:        time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

// Register mounts the dashboard routes under /admin/.
func (d *Dashboard) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/login", d.loginPage)
	mux.HandleFunc("POST /admin/login", d.login)
	mux.HandleFunc("POST /admin/logout", d.logout)
	mux.Handle("GET /admin/{$}", d.requireAdmin(http.HandlerFunc(d.index), true))
	mux.Handle("GET /admin/api/users", d.requireAdmin(http.HandlerFunc(d.apiUsers), false))
	mux.Handle("GET /admin/api/stats", d.requireAdmin(http.HandlerFunc(d.apiStats), false))
	mux.Handle("POST /admin/broadcast", d.requireAdmin(http.HandlerFunc(d.broadcast), false))
	mux.Handle("GET /admin/ws", d.requireAdmin(http.HandlerFunc(d.serveLeadFeed), false))
	if d.reload != nil {
		mux.Handle("POST /admin/api/reload", d.requireAdmin(http.HandlerFunc(d.reloadContent), false))
	}
}

func (d *Dashboard) reloadContent(w http.ResponseWriter, r *http.Request) {
	quiz, err := d.reload(r.Context())
	if err != nil {
		d.logger.Warn("quiz content reload rejected", zap.Error(err))
		resp := map[string]any{"error": err.Error()}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			resp["problems"] = verr.Problems
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	d.logger.Info("quiz content reloaded", zap.String("quiz_id", quiz.ID))
	writeJSON(w, http.StatusOK, map[string]any{
		"quiz":      quiz.ID,
		"questions": len(quiz.Questions),
		"catalog":   len(quiz.Catalog),
	})
}

func (d *Dashboard) loginPage(w http.ResponseWriter, _ *http.Request) {
	d.render(w, http.StatusOK, "login.html", map[string]string{})
}

func (d *Dashboard) login(w http.ResponseWriter, r *http.Request) {
	password := r.PostFormValue("password")
	if subtle.ConstantTimeCompare([]byte(password), []byte(d.password)) != 1 {
		d.render(w, http.StatusUnauthorized, "login.html", map[string]string{"Error": "Неверный пароль"})
		return
	}
	token, err := d.issueToken()
	if err != nil {
		d.logger.Error("sign admin session", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/admin",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  d.now().Add(d.sessionTTL),
	})
	http.Redirect(w, r, "/admin/", http.StatusSeeOther)
}

func (d *Dashboard) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/admin", MaxAge: -1, HttpOnly: true})
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

func (d *Dashboard) issueToken() (string, error) {
	now := d.now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d.sessionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
}

func (d *Dashboard) validToken(raw string) bool {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return d.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(d.now),
		jwt.WithSubject("admin"),
	)
	return err == nil && token.Valid
}

// requireAdmin checks the session cookie. Browser pages are redirected to the login form, API
// calls get 401.
func (d *Dashboard) requireAdmin(next http.Handler, page bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || !d.validToken(cookie.Value) {
			if page {
				http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
				return
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type modelCount struct {
	Model string
	Count int
}

func (d *Dashboard) index(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	users, err := d.store.ListUsers(r.Context(), usersPageSize, offset)
	if err != nil {
		d.logger.Error("list users", zap.Error(err))
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	stats, err := d.store.Stats(r.Context())
	if err != nil {
		d.logger.Error("stats", zap.Error(err))
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	leads := d.leads.Recent()
	for i, j := 0, len(leads)-1; i < j; i, j = i+1, j-1 {
		leads[i], leads[j] = leads[j], leads[i]
	}
	next := 0
	if len(users) == usersPageSize {
		next = offset + usersPageSize
	}
	d.render(w, http.StatusOK, "dashboard.html", map[string]any{
		"Stats":      stats,
		"Models":     sortedModels(stats),
		"Users":      users,
		"Leads":      leads,
		"NextOffset": next,
	})
}

func sortedModels(stats domain.Stats) []modelCount {
	out := make([]modelCount, 0, len(stats.ByModel))
	for model, n := range stats.ByModel {
		out = append(out, modelCount{Model: model, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Model < out[j].Model
	})
	return out
}

type userJSON struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Phone        string    `json:"phone"`
	LastModel    string    `json:"lastModel"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

func (d *Dashboard) apiUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = usersPageSize
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	users, err := d.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	out := make([]userJSON, 0, len(users))
	for _, u := range users {
		out = append(out, userJSON{
			ID:           u.ID,
			Username:     u.Username,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			Phone:        u.Phone,
			LastModel:    u.LastModel,
			CreatedAt:    u.CreatedAt,
			LastActiveAt: u.LastActiveAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Dashboard) apiStats(w http.ResponseWriter, r *http.Request) {
	stats, err := d.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// broadcast sends the posted text to every known user with bounded concurrency. Individual
// failures (blocked bot, deleted account) are counted, not fatal.
func (d *Dashboard) broadcast(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.PostFormValue("text"))
	if text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	ids, err := d.store.UserIDs(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	var sent, failed atomic.Int64
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(broadcastLimit)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := d.sender.SendText(ctx, id, text); err != nil {
				failed.Add(1)
				d.logger.Debug("broadcast send failed", zap.Int64("chat_id", id), zap.Error(err))
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("broadcast finished", zap.Int64("sent", sent.Load()), zap.Int64("failed", failed.Load()))
	writeJSON(w, http.StatusOK, map[string]int64{"sent": sent.Load(), "failed": failed.Load()})
}

func (d *Dashboard) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		d.logger.Error("render template", zap.String("template", name), zap.Error(err))
	}
}
