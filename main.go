package main

import "github.com/flagforge/flagforge/cmd"

func main() {
	cmd.Execute()
}
