package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/emuchievements/internal/utils"
	"github.com/sw33tLie/emuchievements/pkg/achievements"
	"github.com/sw33tLie/emuchievements/pkg/cache"
	"github.com/sw33tLie/emuchievements/pkg/connectivity"
	"github.com/sw33tLie/emuchievements/pkg/manager"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
	"github.com/sw33tLie/emuchievements/pkg/throttle"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `
	 ___ _ __ ___  _   _  ___| |__ (_) _____   _____ _ __ ___   ___ _ __ | |_ ___
	/ _ \ '_ ' _ \| | | |/ __| '_ \| |/ _ \ \ / / _ \ '_ ' _ \ / _ \ '_ \| __/ __|
	|  __/ | | | | | |_| | (__| | | | |  __/\ V /  __/ | | | | |  __/ | | | |_\__ \
	 \___|_| |_| |_|\__,_|\___|_| |_|_|\___| \_/ \___|_| |_| |_|\___|_| |_|\__|___/

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "emuchievements",
	Short: "RetroAchievements for your emulated library.",
	Long: LOGO + `emuchievements resolves the games behind your non-Steam shortcuts, fetches
their RetroAchievements progress and keeps the results cached for a UI layer.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.emuchievements.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".emuchievements")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	setDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".emuchievements.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

func setDefaults() {
	dataDir, err := utils.DefaultDataDir()
	if err != nil {
		dataDir = "."
	}

	viper.SetDefault("retroachievements.username", "")
	viper.SetDefault("retroachievements.api_key", "")
	viper.SetDefault("retroachievements.base_url", retroachievements.DefaultBaseURL)
	viper.SetDefault("retroachievements.media_url", achievements.DefaultMediaURL)

	viper.SetDefault("settings.backend", "file")
	viper.SetDefault("settings.path", filepath.Join(dataDir, "settings.json"))
	viper.SetDefault("settings.packet_size", cache.DefaultPacketSize)

	viper.SetDefault("storage.dbpath", filepath.Join(dataDir, "emuchievements.sqlite"))

	viper.SetDefault("throttle.rate", throttle.DefaultRate)
	viper.SetDefault("throttle.window", throttle.DefaultWindow)
	viper.SetDefault("throttle.concurrency", 0)

	viper.SetDefault("refresh.concurrency", manager.DefaultConcurrency)
	viper.SetDefault("cache.ttl", cache.DefaultPayloadTTL)
	viper.SetDefault("cache.size", cache.DefaultPayloadSize)

	viper.SetDefault("connectivity.url", connectivity.DefaultProbeURL)
	viper.SetDefault("connectivity.interval", connectivity.DefaultPollInterval)

	viper.SetDefault("hasher.command", "")

	viper.SetDefault("general.show_achieved_state_prefixes", true)

	viper.SetDefault("library.applications", []map[string]interface{}{})
}
