package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/aisleworks/aisle/internal/billing/stripe"
	"github.com/aisleworks/aisle/internal/billing/sync"
	"github.com/aisleworks/aisle/internal/email"
	"github.com/aisleworks/aisle/internal/entitlement"
	"github.com/aisleworks/aisle/internal/handler"
	"github.com/aisleworks/aisle/internal/middleware"
	"github.com/aisleworks/aisle/internal/plan"
	"github.com/aisleworks/aisle/internal/store"
	"github.com/aisleworks/aisle/internal/tenant"
	ws "github.com/aisleworks/aisle/internal/websocket"
)

// Config carries the environment-derived server settings.
type Config struct {
	BaseURL       string
	SecureCookies bool
	Stripe        stripe.Config
	Prices        plan.PriceConfig
}

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	resolver       *tenant.Resolver
	authH          *handler.AuthHandler
	teamH          *handler.TeamHandler
	invitationH    *handler.InvitationHandler
	eventH         *handler.EventHandler
	taskH          *handler.TaskHandler
	dealH          *handler.DealHandler
	billingH       *handler.BillingHandler
	entitlementH   *handler.EntitlementHandler
	sessionStore   *store.SessionStore
	magicLinkStore *store.MagicLinkStore
	rateLimiter    *middleware.RateLimiter
	logger         *slog.Logger
}

func New(db *sql.DB, emailClient *email.Client, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	magicLinkStore := store.NewMagicLinkStore(db)
	teamStore := store.NewTeamStore(db)
	invitationStore := store.NewInvitationStore(db)
	eventStore := store.NewEventStore(db)
	taskStore := store.NewTaskStore(db)
	dealStore := store.NewDealStore(db)
	subStore := store.NewSubscriptionStore(db)

	catalog := plan.NewCatalog(cfg.Prices)
	resolver := tenant.NewResolver(teamStore, logger.With("component", "tenant"))
	guard := tenant.NewAccessGuard(eventStore, teamStore)
	enforcer := entitlement.NewEnforcer(catalog, subStore, teamStore, eventStore, taskStore, dealStore,
		logger.With("component", "entitlement"))

	stripeClient := stripe.NewClient(cfg.Stripe, logger.With("component", "stripe"))
	synchronizer := sync.NewSynchronizer(catalog, subStore, stripeClient, hub,
		logger.With("component", "billing_sync"))

	return &Server{
		db:       db,
		hub:      hub,
		resolver: resolver,
		authH: handler.NewAuthHandler(userStore, sessionStore, magicLinkStore, resolver, emailClient,
			cfg.SecureCookies, logger.With("component", "auth")),
		teamH: handler.NewTeamHandler(teamStore, userStore, resolver, logger.With("component", "team")),
		invitationH: handler.NewInvitationHandler(invitationStore, teamStore, userStore, resolver, enforcer,
			emailClient, logger.With("component", "invitation")),
		eventH: handler.NewEventHandler(eventStore, guard, resolver, enforcer, hub,
			logger.With("component", "event")),
		taskH: handler.NewTaskHandler(taskStore, teamStore, guard, enforcer, hub,
			logger.With("component", "task")),
		dealH: handler.NewDealHandler(dealStore, resolver, enforcer, logger.With("component", "deal")),
		billingH: handler.NewBillingHandler(teamStore, subStore, userStore, catalog, stripeClient,
			synchronizer, resolver, cfg.BaseURL+"/settings/billing", logger.With("component", "billing")),
		entitlementH:   handler.NewEntitlementHandler(enforcer, resolver),
		sessionStore:   sessionStore,
		magicLinkStore: magicLinkStore,
		rateLimiter:    middleware.NewRateLimiter(),
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// MagicLinkStore returns the magic link store for cleanup tasks.
func (s *Server) MagicLinkStore() *store.MagicLinkStore {
	return s.magicLinkStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/request-code", s.rateLimitedHandler(s.authH.RequestCode))
	outerMux.HandleFunc("POST /api/auth/verify", s.rateLimitedHandler(s.authH.Verify))
	outerMux.HandleFunc("POST /webhooks/stripe", s.billingH.Webhook)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore)
	outerMux.Handle("/api/", authMiddleware(protectedMux))
	outerMux.Handle("GET /ws", authMiddleware(ws.HandleWebSocket(s.hub, s.resolver)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)

	// Team
	mux.HandleFunc("GET /api/team", s.teamH.Get)
	mux.HandleFunc("PATCH /api/team", s.teamH.Update)
	mux.HandleFunc("GET /api/team/members", s.teamH.ListMembers)
	mux.HandleFunc("PATCH /api/team/members/{userID}/permissions", s.teamH.UpdateMemberPermissions)
	mux.HandleFunc("DELETE /api/team/members/{userID}", s.teamH.RemoveMember)

	// Invitations
	mux.HandleFunc("POST /api/team/invitations", s.invitationH.Create)
	mux.HandleFunc("GET /api/team/invitations", s.invitationH.List)
	mux.HandleFunc("DELETE /api/team/invitations/{id}", s.invitationH.Revoke)
	mux.HandleFunc("POST /api/invitations/accept", s.invitationH.Accept)

	// Events
	mux.HandleFunc("POST /api/events", s.eventH.Create)
	mux.HandleFunc("GET /api/events", s.eventH.List)
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.eventH.Update)
	mux.HandleFunc("POST /api/events/{id}/archive", s.eventH.Archive)
	mux.HandleFunc("DELETE /api/events/{id}", s.eventH.Delete)

	// Tasks
	mux.HandleFunc("POST /api/events/{eventID}/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/events/{eventID}/tasks", s.taskH.List)
	mux.HandleFunc("PUT /api/events/{eventID}/tasks/{taskID}/status", s.taskH.UpdateStatus)
	mux.HandleFunc("PUT /api/events/{eventID}/tasks/{taskID}/assignee", s.taskH.Assign)
	mux.HandleFunc("DELETE /api/events/{eventID}/tasks/{taskID}", s.taskH.Delete)

	// Deals
	mux.HandleFunc("POST /api/deals", s.dealH.Create)
	mux.HandleFunc("GET /api/deals", s.dealH.List)
	mux.HandleFunc("PUT /api/deals/{id}/stage", s.dealH.UpdateStage)
	mux.HandleFunc("DELETE /api/deals/{id}", s.dealH.Delete)

	// Billing
	mux.HandleFunc("GET /api/billing/plans", s.billingH.Plans)
	mux.HandleFunc("POST /api/billing/checkout", s.billingH.Checkout)
	mux.HandleFunc("POST /api/billing/portal", s.billingH.Portal)
	mux.HandleFunc("GET /api/billing/subscription", s.billingH.Subscription)
	mux.HandleFunc("GET /api/billing/payments", s.billingH.Payments)
	mux.HandleFunc("POST /api/billing/sync", s.billingH.Sync)

	// Entitlements
	mux.HandleFunc("GET /api/entitlements", s.entitlementH.Summary)
}
