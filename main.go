package main

import "github.com/xrsl/jobprep/cmd"

func main() {
	cmd.Execute()
}
