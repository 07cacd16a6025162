package main

import (
	"os"

	"github.com/thunderhead-labs/poktinfo/app/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
