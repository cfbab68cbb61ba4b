package main

import "github.com/gitdm/gitdm/cmd"

func main() {
	cmd.Execute()
}
