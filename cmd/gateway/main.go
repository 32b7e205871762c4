// Command gateway is the API gateway server and management CLI.
package main

func main() {
	Execute()
}
