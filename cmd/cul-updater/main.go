package main

import "github.com/oshokin/cul-updater/cmd/cul-updater/cmd"

func main() {
	cmd.Execute()
}
