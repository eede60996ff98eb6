// Package admincli implements the operator command line: directory
// inspection and cleanup over the configured identity store, and minting
// bearer tokens for the /admin HTTP API.
package admincli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dmitrijs2005/gophtvm/internal/flagx"
	"github.com/dmitrijs2005/gophtvm/internal/logging"
	"github.com/dmitrijs2005/gophtvm/internal/server"
	"github.com/dmitrijs2005/gophtvm/internal/server/admin"
	"github.com/dmitrijs2005/gophtvm/internal/server/auth"
	"github.com/dmitrijs2005/gophtvm/internal/server/awscfg"
	"github.com/dmitrijs2005/gophtvm/internal/server/config"
	"github.com/dmitrijs2005/gophtvm/internal/server/devices"
	"github.com/dmitrijs2005/gophtvm/internal/server/store"
	"github.com/dmitrijs2005/gophtvm/internal/server/users"
)

// ErrUsage is returned for a missing or unknown command.
var ErrUsage = errors.New("usage")

// Flags of the server configuration that take a value.
var configValueFlags = []string{
	"-a", "-n", "-x", "-i", "-t", "-b", "-d", "-g", "-e", "-k", "-u", "-p", "-f", "-s", "-r", "-l", "-c", "-config",
}

const usage = `usage: admin [server flags] <command> [arg]

commands:
  list-users              print all user names
  count-users             print the number of users
  describe-user <name>    print a user record (without password hash)
  delete-user <name>      delete a user; devices are kept
  list-devices            print all device uids
  count-devices           print the number of devices
  delete-device <uid>     delete a device
  stats                   print domain sizes
  token [subject]         mint an admin API bearer token`

// openBackend is a seam for tests.
var openBackend = func(ctx context.Context, cfg *config.Config) (*server.Backend, error) {
	awsCfg, err := awscfg.Load(ctx, awscfg.Options{
		Region:      cfg.StoreRegion,
		AccessKeyID: cfg.AWSAccessKeyID,
		SecretKey:   cfg.AWSSecretKey,
	})
	if err != nil {
		return nil, err
	}
	return server.OpenBackend(ctx, cfg, awsCfg)
}

// Run executes the command found among args.
func Run(ctx context.Context, w io.Writer, cfg *config.Config, args []string) error {
	pos := flagx.Positional(args, configValueFlags)
	if len(pos) == 0 {
		fmt.Fprintln(w, usage)
		return ErrUsage
	}
	cmd, rest := pos[0], pos[1:]

	if cmd == "token" {
		return mintToken(w, cfg, rest)
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	for _, d := range []string{cfg.UsersDomain(), cfg.DevicesDomain()} {
		if err := store.EnsureDomain(ctx, backend.Store, d); err != nil {
			return fmt.Errorf("ensure domain %s: %w", d, err)
		}
	}

	log := logging.Discard()
	svc := admin.NewService(
		users.NewDirectory(backend.Store, cfg.UsersDomain(), cfg.AppName, log),
		devices.NewDirectory(backend.Store, cfg.DevicesDomain(), log),
	)

	switch cmd {
	case "list-users":
		return printList(ctx, w, svc.ListUsers)
	case "count-users":
		return printCount(ctx, w, svc.CountUsers)
	case "describe-user":
		name, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		view, err := svc.DescribeUser(ctx, name)
		if err != nil {
			return err
		}
		return printJSON(w, view)
	case "delete-user":
		name, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		if err := svc.DeleteUser(ctx, name); err != nil {
			return err
		}
		fmt.Fprintln(w, "deleted user", name)
		return nil
	case "list-devices":
		return printList(ctx, w, svc.ListDevices)
	case "count-devices":
		return printCount(ctx, w, svc.CountDevices)
	case "delete-device":
		uid, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		if err := svc.DeleteDevice(ctx, uid); err != nil {
			return err
		}
		fmt.Fprintln(w, "deleted device", uid)
		return nil
	case "stats":
		st, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\t%d\n", st.UsersDomain, st.Users)
		fmt.Fprintf(tw, "%s\t%d\n", st.DevicesDomain, st.Devices)
		return tw.Flush()
	}

	fmt.Fprintln(w, usage)
	return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
}

func oneArg(cmd string, rest []string) (string, error) {
	if len(rest) != 1 {
		return "", fmt.Errorf("%w: %s takes exactly one argument", ErrUsage, cmd)
	}
	return rest[0], nil
}

func mintToken(w io.Writer, cfg *config.Config, rest []string) error {
	if !cfg.AdminEnabled() {
		return errors.New("admin secret is not configured (-s)")
	}
	subject := "admin"
	if len(rest) > 0 {
		subject = rest[0]
	}
	token, err := auth.GenerateToken(subject, []byte(cfg.AdminSecret), cfg.AdminTokenValidity)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}

func printList(ctx context.Context, w io.Writer, list func(context.Context) ([]string, error)) error {
	names, err := list(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
	return nil
}

func printCount(ctx context.Context, w io.Writer, count func(context.Context) (int, error)) error {
	n, err := count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, n)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
