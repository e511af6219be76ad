package main

import "github.com/RedbringerS/vfs-bot/cmd"

func main() {
	cmd.Execute()
}
