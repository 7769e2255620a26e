package main

import "github.com/clausewise/clausewise/internal/cli"

func main() {
	cli.Execute()
}
