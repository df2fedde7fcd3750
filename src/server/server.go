package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"lumixd/src/auth"
	"lumixd/src/handler"
	"lumixd/src/manager"
	"lumixd/src/notify"
)

// StartServer runs the order API until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, mgr *manager.Manager, hub *notify.Hub) {
	config := GetConfig()
	authConfig := auth.GetConfig()

	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("\"/healthcheck\" error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/orders/stream", handler.StreamOrdersHandler(hub))

	// Order API
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(authConfig.APITokenHash))

		r.Post("/orders", handler.CreateOrderHandler(mgr))
		r.Get("/orders/pending", handler.ListPendingHandler(mgr))
		r.Get("/orders/{orderID}", handler.GetOrderHandler(mgr))
		r.Delete("/orders/{orderID}", handler.CancelOrderHandler(mgr))
	})

	addr := ":" + config.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
