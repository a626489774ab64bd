package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/loykin/launchr"
)

// This example loads a TOML config file and triggers the configured process through the public facade.
func main() {
	// Use the sample config in the repo (adjust path if running from a different cwd)
	cfgPath := filepath.Join("example", "config", "launchr.toml")
	cfg, err := launchr.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}
	l, err := launchr.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = l.Close(context.Background()) }()

	out, err := l.Start(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Println("outcome:", out)

	b, _ := json.MarshalIndent(l.Status(), "", "  ")
	fmt.Println(string(b))
}
