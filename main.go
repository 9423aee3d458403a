package main

import (
	"flag"
	"log"

	"github.com/singlecellportal/ingest-orchestrator/cmd"
)

// Overwritten at build time with -ldflags "-X main.apiVersion=..."
var apiVersion = "dev"

func main() {
	shouldRunMigrations := flag.Bool("migrations", false, "Run migrations")
	shouldRunWorker := flag.Bool("worker", false, "Run the ingest job workers")
	flag.Parse()

	if !*shouldRunMigrations && !*shouldRunWorker {
		flag.Usage()
		return
	}

	if *shouldRunMigrations {
		if err := cmd.RunMigrations(); err != nil {
			log.Fatal(err)
		}
	}

	if *shouldRunWorker {
		if err := cmd.RunWorker(apiVersion); err != nil {
			log.Fatal(err)
		}
	}
}
