package main

import "github.com/forPelevin/newscast/internal/cli"

func main() {
	cli.Main()
}
