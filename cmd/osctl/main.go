// osctl is a command-line client for the storage access layer. It
// opens a backend from a named profile (or ad-hoc flags) and exposes
// the accessor operations as subcommands.
package main

func main() {
	Execute()
}
