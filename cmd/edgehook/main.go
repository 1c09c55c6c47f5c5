package main

import "github.com/jmcleod/edgehook/cmd/edgehook/cmd"

func main() {
	cmd.Execute()
}
