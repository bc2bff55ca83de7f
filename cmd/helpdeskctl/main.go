package main

import "helpdesk/cmd/cli"

func main() {
	cli.Execute()
}
