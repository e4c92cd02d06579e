package main

import "github.com/example/slotbot/cmd"

func main() {
	cmd.Execute()
}
