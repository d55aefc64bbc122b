package manager

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sw33tLie/emuchievements/pkg/connectivity"
	"github.com/sw33tLie/emuchievements/pkg/library"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
)

const notificationTitle = "Emuchievements"

// RefreshAll drops in-memory results and fetches every application that
// may have achievements. Failures of single applications are logged and
// counted; only cycle level failures are returned and reported to the user.
func (m *Manager) RefreshAll(ctx context.Context) error {
	started := false
	m.state.update(func(st *LoadingState) bool {
		if st.GlobalLoading {
			return false
		}
		*st = LoadingState{GlobalLoading: true, Fetching: true}
		started = true
		return true
	})
	if !started {
		return ErrRefreshInProgress
	}

	err := m.refresh(ctx)
	m.state.update(func(st *LoadingState) bool {
		st.GlobalLoading = false
		st.Fetching = false
		st.CurrentGameLabel = ""
		if err != nil {
			st.Errored = true
			st.LastErrorMessage = ErrorMessage(err)
		}
		return true
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, retroachievements.ErrNotAuthenticated) {
		m.log.Warnf("Refresh skipped: %v", err)
		m.notify("Not logged in. Add your RetroAchievements username and API key in the settings.")
	} else {
		m.log.Errorf("Refresh failed: %v", err)
		m.notify(ErrorMessage(err))
	}
	return err
}

func (m *Manager) notify(body string) {
	if m.notifier != nil {
		m.notifier.Notify(notificationTitle, body)
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	if !m.store.Credentials().Valid() {
		return retroachievements.ErrNotAuthenticated
	}
	if m.online != nil && !m.online.IsOnline(ctx) {
		return fmt.Errorf("no internet connection: %w", connectivity.ErrNetworkUnavailable)
	}

	m.resetForRefresh()

	apps, err := m.lib.ListApplications(ctx)
	if err != nil {
		return fmt.Errorf("failed to list applications: %w", err)
	}

	present := make(map[int]bool, len(apps))
	for _, a := range apps {
		present[a.AppID] = true
	}
	removed, err := m.store.Prune(ctx, func(appID int) bool { return present[appID] })
	if err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}
	if removed > 0 {
		m.log.Infof("Forgot %d applications that left the library", removed)
	}

	var pending []library.Application
	for _, a := range apps {
		if m.wanted(a.AppID) {
			pending = append(pending, a)
		}
	}

	m.state.update(func(st *LoadingState) bool {
		st.Fetching = false
		st.Total = len(pending)
		return true
	})
	m.log.Infof("Refreshing achievements of %d applications", len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, app := range pending {
		g.Go(func() error {
			res, err := m.fetchAsync(gctx, app.AppID, &app)
			if err != nil && res.State == Failed {
				m.log.Errorf("[%d] %s: %v", app.AppID, app.Label(), err)
			}

			m.state.update(func(st *LoadingState) bool {
				st.Processed++
				st.CurrentGameLabel = app.Label()
				return true
			})
			if m.onAppDone != nil {
				m.onAppDone(app, res)
			}
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// wanted skips applications confirmed to have no match, unless a positive
// override says otherwise.
func (m *Manager) wanted(appID int) bool {
	if o, ok := m.store.Override(appID); ok {
		if o.GameID == nil {
			return false
		}
		if *o.GameID > 0 {
			return true
		}
	}
	if ident, ok := m.store.Identity(appID); ok && ident.GameID == nil {
		return false
	}
	return true
}
