package main

import "github.com/MeKo-Tech/qrharvest/cmd/qrharvest/cmd"

func main() {
	cmd.Execute()
}
