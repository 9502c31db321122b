package main

import (
	_ "time/tzdata"

	"index-anomaly-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
