package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"

	"github.com/daijir/scripture-habit/internal/auth"
	"github.com/daijir/scripture-habit/internal/config"
	"github.com/daijir/scripture-habit/internal/database"
	"github.com/daijir/scripture-habit/internal/mutation"
	"github.com/daijir/scripture-habit/internal/store/mongostore"
)

const HabitCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Scripture Habit maintenance.

Reads MONGODB_URI, REDIS_URI and JWT_SECRET from the environment or .env.

Usage:
    habitctl backfill [<uid>...]
    habitctl unity <group_id> [--tz=<tz>] [--reconcile]
    habitctl streak <user_id>
    habitctl token <user_id> [--ttl=<ttl>]
    habitctl -h | --help
    habitctl --version

Options:
    -h --help      Show this screen.
    --version      Show version.
    --tz=<tz>      Timezone for "today" [default: UTC].
    --reconcile    Write the computed activity set back to the group.
    --ttl=<ttl>    Token lifetime [default: 1h].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], HabitCtlVersion)
	if err != nil {
		Err.Fatal(err)
	}

	if err := godotenv.Load(); err != nil {
		Err.Println("No .env file found")
	}
	cfg := config.Load()

	if token_, _ := opts.Bool("token"); token_ {
		userID, _ := opts.String("<user_id>")
		ttl, err := time.ParseDuration(stringOpt(opts, "--ttl"))
		if err != nil {
			Err.Fatalf("invalid --ttl: %v", err)
		}
		if err := printToken(Out.Writer(), auth.NewTokenService(cfg.JWTSecret, ttl), userID); err != nil {
			Err.Fatal(err)
		}
		return
	}

	if err := database.Connect(cfg.MongoURI); err != nil {
		Err.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.Disconnect()
	// Redis carries change notifications; without it writes still land but
	// live sessions will not see them until they resubscribe.
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		Err.Printf("⚠️  Redis unavailable, change notifications disabled: %v", err)
	} else {
		defer database.DisconnectRedis()
	}

	docs := mongostore.New(database.DB, database.RedisClient)
	coord := mutation.New(docs, nil)
	ctx := context.Background()

	var runErr error
	if backfill_, _ := opts.Bool("backfill"); backfill_ {
		users, _ := opts["<uid>"].([]string)
		runErr = backfill(ctx, Out.Writer(), docs, coord, users)
	} else if unity_, _ := opts.Bool("unity"); unity_ {
		groupID, _ := opts.String("<group_id>")
		reconcile, _ := opts.Bool("--reconcile")
		runErr = unityReport(ctx, Out.Writer(), docs, coord, groupID, stringOpt(opts, "--tz"), reconcile, time.Now())
	} else if streak_, _ := opts.Bool("streak"); streak_ {
		userID, _ := opts.String("<user_id>")
		runErr = streakReport(ctx, Out.Writer(), coord, userID, time.Now())
	}
	if runErr != nil {
		Err.Fatal(runErr)
	}
}

func stringOpt(opts docopt.Opts, key string) string {
	v, _ := opts.String(key)
	return v
}
