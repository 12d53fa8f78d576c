package internal

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fileportal/internal/storage"
)

const sessionCookieName = "portal_session"

// Friendly generated names; nobody signs up, everyone gets a handle.
var (
	nameAdjectives = []string{"Swift", "Brave", "Shiny", "Cool", "Clever", "Happy", "Silver", "Neon", "Fast", "Quiet"}
	nameAnimals    = []string{"Tiger", "Panda", "Fox", "Eagle", "Wolf", "Dolphin", "Lion", "Falcon", "Owl", "Shark"}
)

// IdentityProvider hands every caller a session-durable opaque username. The
// rest of the system treats the name as an uninterpreted string.
type IdentityProvider struct {
	store      *storage.Store
	sessionTTL time.Duration
	log        *slog.Logger
}

func NewIdentityProvider(store *storage.Store, sessionTTL time.Duration, log *slog.Logger) *IdentityProvider {
	return &IdentityProvider{store: store, sessionTTL: sessionTTL, log: log}
}

// UserFor resolves the caller's username from the session cookie, minting a
// fresh session when the cookie is absent or unknown. A store failure
// degrades to a non-durable name rather than failing the request.
func (p *IdentityProvider) UserFor(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		sess, err := p.store.GetSession(r.Context(), cookie.Value)
		if err != nil {
			p.log.Warn("identity: session lookup failed", "error", err)
		} else if sess != nil {
			if err := p.store.TouchSession(r.Context(), sess.Token, time.Now()); err != nil {
				p.log.Warn("identity: session touch failed", "error", err)
			}
			return sess.Username
		}
	}

	username := randomUsername()
	token := uuid.NewString()
	if err := p.store.CreateSession(r.Context(), token, username); err != nil {
		p.log.Warn("identity: session create failed", "error", err)
		return username
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(p.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return username
}

func randomUsername() string {
	adjective := nameAdjectives[rand.IntN(len(nameAdjectives))]
	animal := nameAnimals[rand.IntN(len(nameAnimals))]
	return fmt.Sprintf("%s-%s-%d", adjective, animal, 10+rand.IntN(90))
}
