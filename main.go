package main

import "github.com/Yates-Labs/gobot/cmd"

func main() {
	cmd.Execute()
}
