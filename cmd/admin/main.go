package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/gophtvm/internal/admincli"
	"github.com/dmitrijs2005/gophtvm/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	if err := admincli.Run(ctx, os.Stdout, cfg, os.Args[1:]); err != nil {
		if errors.Is(err, admincli.ErrUsage) {
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}

}
