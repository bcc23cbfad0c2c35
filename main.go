package main

import "github.com/ValentinKolb/snapKV/cmd"

func main() {
	cmd.Execute()
}
