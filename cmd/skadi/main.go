/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"github.com/ssargent/skadi/cmd/skadi/cmd"
)

func main() {
	cmd.Execute()
}
