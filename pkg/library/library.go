// Package library enumerates the non-Steam shortcuts achievements are
// resolved for.
package library

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Application is a non-Steam game shortcut.
type Application struct {
	AppID         int    `json:"app_id" mapstructure:"app_id"`
	Name          string `json:"name" mapstructure:"name"`
	Exe           string `json:"exe" mapstructure:"exe"`
	LaunchOptions string `json:"launch_options" mapstructure:"launch_options"`
}

// LaunchCommand is the executable followed by its launch options.
func (a Application) LaunchCommand() string {
	return strings.TrimSpace(a.Exe + " " + a.LaunchOptions)
}

// Label is the name shown while the application is being processed.
func (a Application) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("app %d", a.AppID)
}

// Library lists the applications known to the host.
type Library interface {
	ListApplications(ctx context.Context) ([]Application, error)
}

// Static is a fixed Library.
type Static []Application

func (s Static) ListApplications(context.Context) ([]Application, error) {
	out := make([]Application, len(s))
	copy(out, s)
	return out, nil
}

// Find returns the application with the given id.
func Find(ctx context.Context, lib Library, appID int) (Application, bool, error) {
	apps, err := lib.ListApplications(ctx)
	if err != nil {
		return Application{}, false, err
	}
	for _, a := range apps {
		if a.AppID == appID {
			return a, true, nil
		}
	}
	return Application{}, false, nil
}

// Config reads the "library.applications" list from viper on every call, so
// edits to the config file are picked up by long running commands.
type Config struct {
	v   *viper.Viper
	key string
}

// FromViper returns a Library backed by v. A nil v uses the global viper.
func FromViper(v *viper.Viper) *Config {
	if v == nil {
		v = viper.GetViper()
	}
	return &Config{v: v, key: "library.applications"}
}

func (c *Config) ListApplications(context.Context) ([]Application, error) {
	var apps []Application
	if err := c.v.UnmarshalKey(c.key, &apps); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", c.key, err)
	}

	seen := make(map[int]bool, len(apps))
	out := apps[:0]
	for _, a := range apps {
		if a.AppID == 0 || seen[a.AppID] {
			continue
		}
		seen[a.AppID] = true
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}
