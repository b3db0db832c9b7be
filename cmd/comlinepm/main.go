package main

import "comlinepm/internal/cli"

func main() {
	cli.Execute()
}
