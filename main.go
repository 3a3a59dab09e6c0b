// The main package for the tickerchronik executable.
package main

import (
	"github.com/basislager/tickerchronik/cmd"
)

func main() {
	cmd.Execute()
}
