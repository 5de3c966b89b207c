package main

import (
	"context"

	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	build   = "0"
	cli     struct {
		Version kong.VersionFlag
		Serve   ServeCmd   `cmd:"" default:"1" help:"Start the HTTP server."`
		Migrate MigrateCmd `cmd:"" help:"Apply database migrations and exit."`
		Prune   PruneCmd   `cmd:"" help:"Delete expired sign-in sessions and exit."`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("vibzprofile"),
		kong.Description("Vibz account, profile and $VIBZ service."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&Globals{Version: version, Build: build})
	cmd.FatalIfErrorf(err)
}
