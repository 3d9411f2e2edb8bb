package main

import "github.com/mathtutor/chat-gateway/cmd"

func main() {
	cmd.Execute()
}
