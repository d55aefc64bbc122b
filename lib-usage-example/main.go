package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sw33tLie/emuchievements/pkg/achievements"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
)

func main() {
	// Usage: go run *.go -username "your_ra_username" -apikey "your_ra_api_key" -hash "<rom md5>"

	userFlag := flag.String("username", "", "RetroAchievements username")
	keyFlag := flag.String("apikey", "", "RetroAchievements web API key")
	hashFlag := flag.String("hash", "", "ROM hash to look up")

	// Parse the command-line flags
	flag.Parse()

	if *userFlag == "" || *keyFlag == "" {
		fmt.Println("Credentials are required. Please provide them using the -username and -apikey flags.")
		return
	}

	if *hashFlag == "" {
		fmt.Println("Hash is required. Please provide it using the -hash flag.")
		return
	}

	ctx := context.Background()
	client := retroachievements.NewClient(retroachievements.Config{})

	gameID, ok, err := client.LookupGameIDByHash(ctx, *hashFlag)
	if err != nil {
		fmt.Println(err)
		return
	}
	if !ok {
		fmt.Println("No game matches this hash.")
		return
	}

	creds := retroachievements.Credentials{Username: *userFlag, APIKey: *keyFlag}
	game, err := client.FetchGameWithUserProgress(ctx, gameID, creds)
	if err != nil {
		fmt.Println(err)
		return
	}

	set := achievements.Normalize(game, achievements.Options{ShowPrefixes: true, FetchedAt: time.Now()})
	for _, id := range set.Order {
		r, _ := set.Lookup(id)
		fmt.Println(r.ID, r.DisplayName, r.Points)
	}
}
