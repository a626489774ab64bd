package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/launchr"
)

// Mounts the launcher next to the application's own routes in an existing gin engine.
func main() {
	cfg, err := launchr.LoadConfig("")
	if err != nil {
		log.Fatal(err)
	}
	cfg.Server.BasePath = "/launcher"
	cfg.Process.Command = "python3 -m http.server 8501"
	cfg.Process.URL = "http://localhost:8501"

	l, err := launchr.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Close(context.Background()) }()

	r := gin.Default()
	r.GET("/hello", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.Any("/launcher/*any", gin.WrapH(l.Handler()))

	log.Println("listening on :8080; GET /launcher/start spawns the target")
	if err := r.Run(":8080"); err != nil {
		log.Fatal(err)
	}
}
