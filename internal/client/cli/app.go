package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/gophtvm/internal/client/client"
	"github.com/dmitrijs2005/gophtvm/internal/client/config"
	"github.com/google/uuid"
)

type App struct {
	config   *config.Config
	client   client.Client
	reader   *bufio.Reader
	uid      string
	userName string
	key      string
}

func NewApp(c *config.Config) (*App, error) {

	hc, err := client.NewHTTPClient(c.ServerURL, c.AppName, c.RequestTimeout)
	if err != nil {
		return nil, err
	}

	uid := c.DeviceUID
	if uid == "" {
		uid = uuid.NewString()
	}

	return &App{config: c, client: hc, uid: uid, reader: bufio.NewReader(os.Stdin)}, nil
}

func (a *App) isLoggedIn() bool {
	return a.key != ""
}

func (a *App) getStatus() string {
	if a.userName == "" {
		return a.uid
	}
	return fmt.Sprintf("%s@%s", a.userName, a.uid)
}

// Run pings the server once and then serves the REPL until exit or EOF.
func (a *App) Run(ctx context.Context) {
	log.Printf("TVM client, server %s, device %s (type 'help' for commands)", a.config.ServerURL, a.uid)

	if err := a.client.Ping(ctx); err != nil {
		log.Printf("warning: %v", err)
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}
