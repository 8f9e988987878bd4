package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/mivahub/mivahub-backend/pkg/bootstrap"
	"github.com/mivahub/mivahub-backend/pkg/db"
	"github.com/mivahub/mivahub-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up               apply all pending migrations
  down             roll back the latest migration
  status           print applied and pending migrations
  to <version>     migrate up or down to an exact version
  create <name>    write a new empty migration into -dir (default %s)
  validate         check migration names and goose markers
`

func main() {
	flag.Usage = func() { fmt.Fprintf(flag.CommandLine.Output(), usage, migrate.DefaultDir) }
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, arg := flag.Arg(0), flag.Arg(1)
	src := migrate.Source{Dir: *dir}

	// create and validate never touch the database or config.
	switch command {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, arg)
		exitOn(err, "create migration")
		fmt.Println("created", path)
		return
	case "validate":
		var err error
		if *dir == "" {
			err = migrate.ValidateEmbedded()
		} else {
			err = migrate.ValidateDir(*dir)
		}
		exitOn(err, "validate migrations")
		fmt.Println("migrations ok")
		return
	}

	proc := bootstrap.Start("migrate")
	defer proc.Close()
	logg := proc.Logger
	ctx := logg.WithFields(proc.Ctx, map[string]any{
		"command": command,
		"source":  src.String(),
	})

	dbClient, err := db.New(ctx, proc.Config.DB, logg)
	proc.Check("migrate.connect.failed", err)
	proc.OnClose("db", dbClient.Close)

	sqlDB, err := dbClient.DB().DB()
	proc.Check("migrate.handle.failed", err)

	switch command {
	case "up", "down", "status":
		err = migrate.Run(ctx, sqlDB, src, command)
	case "to":
		var version int64
		version, err = strconv.ParseInt(arg, 10, 64)
		if err != nil {
			err = fmt.Errorf("version %q must be YYYYMMDDHHMMSS: %w", arg, err)
			break
		}
		err = migrate.MigrateTo(ctx, sqlDB, src, version)
	default:
		proc.Close()
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		proc.Fatal("migrate.failed", err)
	}

	if version, verr := migrate.Version(ctx, sqlDB); verr == nil {
		ctx = logg.WithField(ctx, "schema_version", version)
	}
	logg.Info(ctx, "migrate.complete")
}

func exitOn(err error, step string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "migrate: %s: %v\n", step, err)
	os.Exit(1)
}
