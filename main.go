// ./main.go
package main

import (
	"github.com/xkilldash9x/stepwise/cmd"
)

// main is the entry point for the stepwise CLI.
func main() {
	cmd.Execute()
}
