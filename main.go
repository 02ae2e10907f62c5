// The main package for the campus-rag executable.
package main

import (
	"github.com/JakeFAU/campus-rag-chatbot/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
