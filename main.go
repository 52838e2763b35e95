package main

import "github.com/iAmSomeone2/asus-bios-renamer/build-tools/cmd"

func main() {
	cmd.Execute()
}
