package main

import "ride-pool-backend/cmd"

func main() {
	cmd.Run()
}
