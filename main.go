package main

import "github.com/qobs-build/spicegen/cmd"

func main() {
	cmd.Execute()
}
