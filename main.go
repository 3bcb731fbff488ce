package main

import "makedelta/cmd"

func main() {
	cmd.Execute()
}
