package main

import "github.com/andresmejia3/posealign/cmd"

func main() {
	cmd.Execute()
}
