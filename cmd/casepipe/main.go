package main

import "github.com/epidata/casepipe/cmd/casepipe/cmd"

func main() {
	cmd.Execute()
}
