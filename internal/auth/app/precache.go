package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tbranch/accountlink/internal/auth/user"
)

// warmProfiles decodes the user's stored provider profiles off the
// request path so downstream caches are warm after a first sign-in.
//
// The work is detached from the request context and deduplicated per
// user, so overlapping callbacks for the same account warm once.
func (s *Service) warmProfiles(u *user.User) {
	if u == nil {
		return
	}
	snapshot := u.Clone()
	go func() {
		_, _, _ = s.precache.Do(snapshot.ID, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.precacheProfiles(ctx, snapshot)
			return nil, nil
		})
	}()
}

func (s *Service) precacheProfiles(ctx context.Context, u *user.User) {
	for _, identity := range u.Providers {
		if err := ctx.Err(); err != nil {
			return
		}
		if identity.ProfileJSON == "" {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(identity.ProfileJSON), &decoded); err != nil {
			s.logger().Printf("precache %s profile for user %s: %v", identity.Provider, u.ID, err)
			continue
		}
		s.logger().Printf("precached %s profile for user %s (%d fields)", identity.Provider, u.ID, len(decoded))
	}
}
