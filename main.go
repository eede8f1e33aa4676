package main

import (
	"log"

	"dbaccountsync/cmd"
)

// @title           dbaccountsync
// @version         1.0
// @description     Database account sync and classification API

// @BasePath  /

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
