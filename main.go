package main

import "truth-dare-backend/cmd"

func main() {
	cmd.Execute()
}
