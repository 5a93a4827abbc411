package main

import "pact-oracle/cli"

func main() {
	cli.Execute()
}
