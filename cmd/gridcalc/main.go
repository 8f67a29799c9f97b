// Command gridcalc evaluates spreadsheet workbook descriptions.
package main

import (
	"context"
	"os"

	"github.com/roach88/gridcalc/internal/cli"
)

func main() {
	os.Exit(cli.Main(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
