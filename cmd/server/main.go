package main

import "github.com/lowc1012/flight-change-api/cmd/server/cmd"

func main() {
	cmd.Execute()
}
