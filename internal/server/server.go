// Package server exposes the achievements manager to a host UI over a local
// JSON API.
package server

import (
	"context"
	"net/http"

	"github.com/sw33tLie/emuchievements/internal/utils"
	"github.com/sw33tLie/emuchievements/pkg/library"
	"github.com/sw33tLie/emuchievements/pkg/manager"
)

type Server struct {
	Manager  *manager.Manager
	Library  library.Library
	Username string
	Password string

	// ctx bounds refresh cycles started by POST /api/refresh.
	ctx context.Context
}

func New(m *manager.Manager, lib library.Library, user, pass string) *Server {
	return &Server{
		Manager:  m,
		Library:  lib,
		Username: user,
		Password: pass,
		ctx:      context.Background(),
	}
}

// WithContext sets the context background refreshes run under.
func (s *Server) WithContext(ctx context.Context) *Server {
	s.ctx = ctx
	return s
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/applications", s.basicAuth(s.handleApplications))
	mux.HandleFunc("GET /api/achievements/{appid}", s.basicAuth(s.handleAchievements))
	mux.HandleFunc("GET /api/achievements/{appid}/progress", s.basicAuth(s.handleProgress))
	mux.HandleFunc("GET /api/state", s.basicAuth(s.handleState))
	mux.HandleFunc("GET /api/state/stream", s.basicAuth(s.handleStateStream))
	mux.HandleFunc("POST /api/refresh", s.basicAuth(s.handleRefresh))
	mux.HandleFunc("DELETE /api/cache", s.basicAuth(s.handleClearCache))
	mux.HandleFunc("DELETE /api/cache/{appid}", s.basicAuth(s.handleClearCacheForApp))
	mux.HandleFunc("PUT /api/overrides/{appid}", s.basicAuth(s.handleSetOverride))
	mux.HandleFunc("DELETE /api/overrides/{appid}", s.basicAuth(s.handleRemoveOverride))

	return mux
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting server on %s", addr)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-s.ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
