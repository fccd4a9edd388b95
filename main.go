// The main package for the coordinator executable.
package main

import (
	"github.com/JakeFAU/crawl-coordinator/cmd"
)

func main() {
	cmd.Execute()
}
