// Package server exposes the combat coordinator over a websocket
// request/response protocol with pushed state updates.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/questkeeper/encounter-server-go/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins; access control
		// happens in the hello handshake.
		return true
	},
}

func serveWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		remote: r.RemoteAddr,
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// StartWebSocketServer serves the websocket endpoint until ctx is
// cancelled, then shuts down gracefully within cfg.ShutdownTimeout.
func StartWebSocketServer(ctx context.Context, cfg config.ServerConfig, hub *Hub, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.WebSocket.Path, func(w http.ResponseWriter, r *http.Request) {
		serveWS(hub, w, r)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    cfg.WebSocket.Address,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting websocket server",
			zap.String("address", cfg.WebSocket.Address),
			zap.String("path", cfg.WebSocket.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
