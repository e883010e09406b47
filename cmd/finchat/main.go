// Command finchat answers questions about a user's finances from the
// terminal or over HTTP.
package main

func main() {
	Execute()
}
