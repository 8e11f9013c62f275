package distributed

import (
	"github.com/robfig/cron/v3"

	"github.com/gwsession/sdk/internal/logger"
	"github.com/gwsession/sdk/internal/verifier"
)

// JWKSRefresher periodically drops a Verifier's cached key set so a
// clustered deployment picks up a rotated signing key within one cron
// interval rather than only on process restart (SPEC_FULL.md §4.2,
// referenced from verifier.Verifier.Refresh).
type JWKSRefresher struct {
	cron *cron.Cron
}

// NewJWKSRefresher schedules v.Refresh on spec (standard 5-field cron
// syntax, e.g. "*/15 * * * *" for every 15 minutes) and starts it
// immediately.
func NewJWKSRefresher(v *verifier.Verifier, spec string) (*JWKSRefresher, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		v.Refresh()
		logger.Verifier().Info().Msg("refreshed cached JWKS key set on schedule")
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return &JWKSRefresher{cron: c}, nil
}

// Stop halts the scheduler. In-flight verifications are unaffected.
func (r *JWKSRefresher) Stop() {
	r.cron.Stop()
}
