package main

import "github.com/vietddude/blessbot/internal/cli"

func main() {
	cli.Execute()
}
