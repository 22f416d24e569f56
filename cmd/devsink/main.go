package main

import (
	"errors"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("devsink: .env: %v", err)
	}

	var (
		addr string
		keep int
	)
	flag.StringVar(&addr, "addr", envOr("DEVSINK_ADDR", ":3000"), "HTTP listen address")
	flag.IntVar(&keep, "keep", 100, "Number of recent pushes kept for GET /pushes")
	flag.Parse()

	log.Printf("devsink listening on %s (POST /api/push, GET /pushes)", addr)
	if err := http.ListenAndServe(addr, newSink(keep).routes()); err != nil {
		log.Fatal(err)
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
