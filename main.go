package main

import "github.com/CosmoTheDev/scanboard/cmd"

func main() {
	cmd.Execute()
}
