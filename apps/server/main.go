package main

import "nimmt-lite/apps/server/cmd"

func main() {
	cmd.Execute()
}
