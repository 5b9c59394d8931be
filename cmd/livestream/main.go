package main

import "github.com/BrianFigueroa001/livestream-website/cmd/livestream/commands"

func main() {
	commands.Execute()
}
