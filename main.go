package main

import "fundi-booker/cmd"

func main() {
	cmd.Execute()
}
