package main

// main is the entry point for the mail-analyzer application. Build-time
// variables live in root.go.
func main() {
	Execute()
}
