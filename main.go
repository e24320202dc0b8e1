// The main package for the bindery executable.
package main

import (
	"bindery/cmd"
)

func main() {
	cmd.Execute()
}
