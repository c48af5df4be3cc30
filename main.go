package main

import "github.com/jake-scott/flair-bridge/cmd"

func main() {
	cmd.Execute()
}
