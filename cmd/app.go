package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/viper"
	"github.com/sw33tLie/emuchievements/internal/utils"
	"github.com/sw33tLie/emuchievements/pkg/cache"
	"github.com/sw33tLie/emuchievements/pkg/connectivity"
	"github.com/sw33tLie/emuchievements/pkg/hasher"
	"github.com/sw33tLie/emuchievements/pkg/identity"
	"github.com/sw33tLie/emuchievements/pkg/library"
	"github.com/sw33tLie/emuchievements/pkg/manager"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
	"github.com/sw33tLie/emuchievements/pkg/storage"
	"github.com/sw33tLie/emuchievements/pkg/throttle"
)

// app holds every component a command needs, wired from the config.
type app struct {
	db       *storage.DB
	store    *cache.Store
	client   *retroachievements.Client
	resolver *identity.Resolver
	manager  *manager.Manager
	library  library.Library
}

// logNotifier shows user facing notifications as log warnings.
type logNotifier struct{}

func (logNotifier) Notify(title, body string) {
	utils.Log.Warnf("%s: %s", title, body)
}

// newApp opens the database, loads the settings document and builds the
// manager. onAppDone may be nil.
func newApp(ctx context.Context, onAppDone func(library.Application, manager.Result)) (*app, error) {
	dbPath := viper.GetString("storage.dbpath")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	docs, err := documentStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	store := cache.NewStore(cache.NewChunkedBackend(docs), cache.Options{
		PacketSize: viper.GetInt("settings.packet_size"),
		Notifier:   logNotifier{},
		Log:        utils.Log,
	})
	if err := store.Load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if err := applyConfigOverrides(ctx, store); err != nil {
		db.Close()
		return nil, err
	}

	online := connectivity.NewProbe(viper.GetString("connectivity.url"))
	interval := viper.GetDuration("connectivity.interval")

	client := retroachievements.NewClient(retroachievements.Config{
		BaseURL:      viper.GetString("retroachievements.base_url"),
		Online:       online,
		PollInterval: interval,
		Log:          utils.Log,
	})

	dir := identity.NewDirectory(client, db, utils.Log)
	resolver := identity.NewResolver(store, newHasher(), dir, utils.Log)

	lib := library.FromViper(viper.GetViper())
	mgr, err := manager.New(manager.Config{
		Library:  lib,
		Resolver: resolver,
		Client:   client,
		Store:    store,
		Payloads: cache.NewPayloadCache(viper.GetInt("cache.size"), viper.GetDuration("cache.ttl")),
		Throttle: throttle.New(throttle.Config{
			Concurrency: viper.GetInt("throttle.concurrency"),
			Rate:        viper.GetInt("throttle.rate"),
			Window:      viper.GetDuration("throttle.window"),
		}),
		Online:      online,
		Concurrency: viper.GetInt("refresh.concurrency"),
		MediaURL:    viper.GetString("retroachievements.media_url"),
		Notifier:    logNotifier{},
		Log:         utils.Log,
		OnAppDone:   onAppDone,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		db:       db,
		store:    store,
		client:   client,
		resolver: resolver,
		manager:  mgr,
		library:  lib,
	}, nil
}

func (a *app) Close() {
	a.manager.Close()
	a.db.Close()
}

func documentStore(db *storage.DB) (cache.DocumentStore, error) {
	switch strings.ToLower(viper.GetString("settings.backend")) {
	case "", "file":
		return cache.NewFileStore(viper.GetString("settings.path"))
	case "sqlite":
		return db, nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q (available: file, sqlite)", viper.GetString("settings.backend"))
	}
}

func newHasher() identity.Hasher {
	if path := viper.GetString("hasher.command"); path != "" {
		return hasher.Command{Path: path}
	}
	return hasher.MD5{}
}

// applyConfigOverrides copies settings given in the config file or the
// environment into the settings document.
func applyConfigOverrides(ctx context.Context, store *cache.Store) error {
	username := viper.GetString("retroachievements.username")
	apiKey := viper.GetString("retroachievements.api_key")
	if username != "" && apiKey != "" {
		creds := retroachievements.Credentials{Username: username, APIKey: apiKey}
		if store.Credentials() != creds {
			if err := store.SetCredentials(ctx, creds); err != nil {
				return err
			}
		}
	}

	if viper.InConfig("general.show_achieved_state_prefixes") {
		g := store.General()
		show := viper.GetBool("general.show_achieved_state_prefixes")
		if g.ShowAchievedStatePrefixes != show {
			g.ShowAchievedStatePrefixes = show
			if err := store.SetGeneral(ctx, g); err != nil {
				return err
			}
		}
	}
	return nil
}

// newTable returns a tabwriter on stdout with header already written.
func newTable(header string) *tabwriter.Writer {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, header)
	return w
}
