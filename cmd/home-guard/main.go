package main

import "github.com/oshokin/home-guard/cmd/home-guard/cmd"

func main() {
	cmd.Execute()
}
