package main

import "chainnode/cmd"

func main() {
	cmd.Execute()
}
