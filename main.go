package main

import "github.com/Laisky/campus-portal/cmd"

func main() {
	cmd.Execute()
}
