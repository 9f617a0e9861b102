package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"taskhub-service/server"
)

func main() {
	commandFlag := flag.String("command", "start", "Command to run")
	flag.Parse()

	switch *commandFlag {
	case "start":
		server.StartServer()
	default:
		fmt.Printf("Unknown command %q\n", *commandFlag)
		os.Exit(1)
	}
}
