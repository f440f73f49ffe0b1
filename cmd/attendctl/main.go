package main

import "github.com/your-org/attendance/cmd/attendctl/cmd"

func main() {
	cmd.Execute()
}
