package main

import "cloudvps-middleware/internal/cli"

func main() {
	cli.Execute()
}
