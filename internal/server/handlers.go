package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sw33tLie/emuchievements/internal/utils"
	"github.com/sw33tLie/emuchievements/pkg/achievements"
	"github.com/sw33tLie/emuchievements/pkg/manager"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type resultResponse struct {
	State manager.AppState                 `json:"state"`
	Data  *achievements.GameAchievementSet `json:"data,omitempty"`
	Error *errorBody                       `json:"error,omitempty"`
}

type applicationResponse struct {
	AppID int    `json:"app_id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

type overrideRequest struct {
	GameID *int `json:"game_id"`
}

func newResultResponse(res manager.Result) resultResponse {
	out := resultResponse{State: res.State, Data: res.Set}
	if res.Err != nil {
		out.Error = &errorBody{Kind: manager.ErrorKind(res.Err), Message: res.Err.Error()}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Log.Debugf("writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Kind: manager.ErrorKind(err), Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, manager.ErrUnknownApplication):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrRefreshInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func appIDFrom(w http.ResponseWriter, r *http.Request) (int, bool) {
	appID, err := utils.ParseAppID(r.PathValue("appid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return 0, false
	}
	return appID, true
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.Library.ListApplications(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, applicationResponse{
			AppID: a.AppID,
			Name:  a.Name,
			Ready: s.Manager.IsReady(a.AppID),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAchievements answers immediately unless ?wait=true is given, in which
// case it waits for the fetch to settle.
func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDFrom(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusOK, newResultResponse(s.Manager.FetchAchievements(appID)))
		return
	}

	res, err := s.Manager.FetchAchievementsAsync(r.Context(), appID)
	if err != nil && errors.Is(err, manager.ErrUnknownApplication) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(res))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDFrom(w, r)
	if !ok {
		return
	}
	p, ok := s.Manager.Progress(appID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no achievements cached for app %d", appID))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Manager.State().Snapshot())
}

// handleStateStream pushes every state change as a server-sent event. Bursts
// of changes are coalesced into the latest snapshot.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	changed := make(chan struct{}, 1)
	unsubscribe := s.Manager.State().Subscribe(func(manager.LoadingState) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func() bool {
		body, err := json.Marshal(s.Manager.State().Snapshot())
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", body); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-changed:
			if !send() {
				return
			}
		}
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.Manager.State().Snapshot().GlobalLoading {
		writeError(w, http.StatusConflict, manager.ErrRefreshInProgress)
		return
	}
	go func() {
		if err := s.Manager.RefreshAll(s.ctx); err != nil {
			utils.Log.Warnf("refresh failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, s.Manager.State().Snapshot())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.Manager.ClearCache(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCacheForApp(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDFrom(w, r)
	if !ok {
		return
	}
	if err := s.Manager.ClearCacheForApp(r.Context(), appID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetOverride pins an application. A null game_id pins it to no game.
func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDFrom(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.GameID != nil && *req.GameID <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid game id %d", *req.GameID))
		return
	}
	if err := s.Manager.SetOverride(r.Context(), appID, req.GameID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveOverride(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDFrom(w, r)
	if !ok {
		return
	}
	if err := s.Manager.RemoveOverride(r.Context(), appID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
