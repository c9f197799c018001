package database

import (
	"context"
	"time"
)

// Health pings every connected backend and reports "ok" or the error per
// backend. Backends that were never connected are omitted.
func Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out := make(map[string]string)
	report := func(name string, err error) {
		if err != nil {
			out[name] = err.Error()
			return
		}
		out[name] = "ok"
	}
	if Client != nil {
		report("mongodb", Client.Ping(ctx, nil))
	}
	if RedisClient != nil {
		report("redis", RedisClient.Ping(ctx).Err())
	}
	if PostgresDB != nil {
		report("postgres", PostgresDB.PingContext(ctx))
	}
	return out
}

// Healthy reports whether every entry of a Health result is "ok".
func Healthy(status map[string]string) bool {
	for _, v := range status {
		if v != "ok" {
			return false
		}
	}
	return true
}
