package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/loykin/launchr"
)

func main() {
	cfg, err := launchr.LoadConfig("")
	if err != nil {
		log.Fatal(err)
	}
	base := os.Getenv("API_BASE")
	if base == "" {
		base = "/api"
	}
	cfg.Server.BasePath = base
	cfg.Process.Name = "demo"
	cfg.Process.Command = "/bin/sh -c 'while true; do echo demo; sleep 5; done'"
	cfg.Readiness.Type = "none"

	l, err := launchr.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Close(context.Background()) }()

	e := echo.New()
	h := l.Handler()

	// Mount under base using Echo's WrapHandler
	e.Any(base, echo.WrapHandler(h))
	e.Any(base+"/*", echo.WrapHandler(h))

	log.Println("starting echo server on :8080 with base", base, "- try GET", base+"/start")
	if err := e.Start(":8080"); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
