package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/site-classifier/internal/mockbackend"
)

func main() {
	addr := defaultString("MOCK_BACKEND_ADDR", ":8000")

	fs := flag.NewFlagSet("mock-backend", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address (env: MOCK_BACKEND_ADDR)")
	_ = fs.Parse(os.Args[1:])

	srv := mockbackend.New(mockbackend.DefaultSites()...)

	_, _ = fmt.Fprintf(os.Stdout, "mock-backend listening on %s (search, fetch and ollama endpoints)\n", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
