package main

import (
	"github.com/MForofontov/Schema-Refinery/cmd"
)

func main() {
	cmd.Execute() // initialize cobra commands
}
