package main

import "github.com/devicelab-dev/gherkin-runner/pkg/cli"

func main() {
	cli.Execute()
}
