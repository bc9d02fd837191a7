package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"coworkgate/internal/api/handlers"
	"coworkgate/internal/core"
	"coworkgate/internal/external"
)

// webhookSignatureTolerance bounds the age of the ts in x-signature.
const webhookSignatureTolerance = 10 * time.Minute

// Server builds the HTTP server with every route group mounted.
func (a *App) Server() (*core.Server, error) {
	srv, err := core.NewServer(a.Config, a.Logger, a.Metrics)
	if err != nil {
		return nil, err
	}
	srv.MetricsHandler = a.MetricsHandler
	srv.HealthProbes = append(srv.HealthProbes, core.PingProbe{ProbeName: "database", Ping: a.Store.Ping})
	srv.OnShutdown(a.Close)

	var replay handlers.ReplayEnqueuer
	if a.Replay != nil {
		replay = a.Replay
	}
	var verifier handlers.SignatureVerifier
	if secret := a.Config.MercadoPago.WebhookSecret; secret.IsSet() {
		verifier = external.NewSignatureVerifier(secret.Unmask(), webhookSignatureTolerance)
	} else {
		a.Logger.Warn("MP_WEBHOOK_SECRET not set; webhook signatures are not verified")
	}

	webhook := handlers.NewWebhookHandler(a.Payments, a.Store.WebhookEvents(), replay, verifier, srv.Validator, a.Logger)
	pay := handlers.NewPaymentHandler(a.Issuer, a.Payments, a.Logger)
	kiosk := handlers.NewAccessHandler(a.Gate, srv.Validator, a.Logger)
	admin := handlers.NewMembershipAdminHandler(a.Reconciler, a.Store.Students(), a.Store.Sessions(), a.Logger)

	srv.PublicRoutes = append(srv.PublicRoutes, webhook.RegisterRoutes, pay.RegisterRoutes)
	srv.KioskRoutes = append(srv.KioskRoutes, kiosk.RegisterRoutes)
	srv.AdminRoutes = append(srv.AdminRoutes, admin.RegisterRoutes, func(r chi.Router) {
		r.Post("/plans/invalidate", func(w http.ResponseWriter, req *http.Request) {
			a.Catalog.Invalidate(req.URL.Query().Get("name"))
			core.JSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	srv.MountRoutes()
	return srv, nil
}

// prometheusNamespace turns a CloudWatch-style namespace ("CoworkGate")
// into a valid metric prefix ("coworkgate").
func prometheusNamespace(ns string) string {
	ns = strings.ToLower(ns)
	var b strings.Builder
	for _, r := range ns {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
