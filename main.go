package main

import "github.com/orstracker/apiserver/cmd"

func main() {
	cmd.Execute()
}
