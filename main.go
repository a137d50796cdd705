package main

import "github.com/hyperknow/hyperknow/cmd"

func main() {
	cmd.Execute()
}
