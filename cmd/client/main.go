package main

import (
	"flag"
	"fmt"
	"os"

	"fileportal/internal/app"
)

func main() {
	defaultServer := envOrDefault("PORTAL_SERVER", "http://localhost:8080")

	serverURL := flag.String("server", defaultServer, "server base URL (e.g., http://localhost:8080)")
	flag.Parse()

	args := flag.Args()
	var roomCode string
	if len(args) >= 1 {
		roomCode = args[0]
	}

	cfg := app.ClientConfig{
		ServerURL: *serverURL,
		RoomCode:  roomCode,
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
