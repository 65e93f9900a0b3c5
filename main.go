package main

import "coursematch/cmd"

func main() {
	cmd.Execute()
}
