package main

import "github.com/Giulio2002/trashdb/cmd/trashdb/commands"

func main() {
	commands.Execute()
}
