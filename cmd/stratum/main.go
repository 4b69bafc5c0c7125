// Package main is the entry point for the stratum CLI.
package main

func main() {
	Execute()
}
