// Command flowbot runs conversation flows: as an HTTP API, an MCP server or
// an interactive chat in the terminal.
package main

func main() {
	Execute()
}
