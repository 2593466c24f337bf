package main

import (
	"os"

	"github.com/chrbailey/lex-intel/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
