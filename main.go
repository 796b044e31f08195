package main

import "CorpusAgent/cmd"

func main() {
	cmd.Execute()
}
