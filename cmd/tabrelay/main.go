// Command tabrelay is a small relay server used by integration tests (and
// any host that wants to simulate N browser tabs as N OS
// processes/goroutines instead of a real browser) to stand in for both
// halves of spec §4.5's Tab Sync Bus transport: a per-channel WebSocket
// broadcast (BroadcastChannel's cross-context fan-out) and an HTTP-backed
// master-lease key-value store (the storage-event fallback's persistent
// key).
//
// The relay logic itself lives in internal/tabrelaysrv; this command just
// wires it to a real listener, the same split the teacher uses between
// cmd/main.go and its internal service packages.
package main

import (
	"os"

	"github.com/gwsession/sdk/internal/logger"
	"github.com/gwsession/sdk/internal/tabrelaysrv"
)

func main() {
	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("LOG_PRETTY", "true") == "true")

	router := tabrelaysrv.New().Router()

	addr := getEnv("LISTEN_ADDR", ":8001")
	logger.Relay().Info().Str("addr", addr).Msg("tabrelay listening")
	if err := router.Run(addr); err != nil {
		logger.Relay().Fatal().Err(err).Msg("tabrelay exited")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
