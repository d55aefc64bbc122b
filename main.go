package main

import "github.com/sw33tLie/emuchievements/cmd"

func main() {
	cmd.Execute()
}
