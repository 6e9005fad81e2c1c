package main

import "github.com/jfmyers9/scrobblify/cmd"

func main() {
	cmd.Execute()
}
