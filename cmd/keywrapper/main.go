package main

import "github.com/ideamans/keywrapper/cmd/keywrapper/cmd"

func main() {
	cmd.Execute()
}
