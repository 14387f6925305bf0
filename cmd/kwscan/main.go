package main

import "kwscan/internal/cli"

func main() {
	cli.Execute()
}
