package main

import "mongoconn/cmd"

func main() {
	cmd.Execute()
}
