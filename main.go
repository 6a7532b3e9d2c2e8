package main

import "github.com/repometrics/github-report/cmd"

func main() {
	cmd.Execute()
}
