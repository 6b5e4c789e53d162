// Command swarm crawls a news site into a key-value store and serves it.
package main

import "github.com/FridgeSeal/swarm/cmd"

func main() {
	cmd.Execute()
}
