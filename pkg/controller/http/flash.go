package http

import (
	"net/http"

	"github.com/secmon-lab/tollgate/pkg/utils/logging"
)

type flashKind string

const (
	flashSuccess flashKind = "success"
	flashError   flashKind = "error"
)

// flashMessage is a notice shown once on the next rendered page.
type flashMessage struct {
	Kind    flashKind `json:"kind"`
	Message string    `json:"message"`
}

func (s *Server) addFlash(w http.ResponseWriter, r *http.Request, msgs ...flashMessage) {
	value, err := encodeCookieValue(msgs)
	if err != nil {
		logging.From(r.Context()).Warn("failed to encode flash", logging.ErrAttr(err))
		return
	}
	s.setCookie(w, r, &http.Cookie{
		Name:   flashCookieName,
		Value:  value,
		MaxAge: flashMaxAge,
	})
}

// popFlash returns the pending notices and clears them.
func (s *Server) popFlash(w http.ResponseWriter, r *http.Request) []flashMessage {
	c, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}
	s.clearCookie(w, r, flashCookieName)

	var msgs []flashMessage
	if err := decodeCookieValue(c.Value, &msgs); err != nil {
		logging.From(r.Context()).Debug("dropping malformed flash", logging.ErrAttr(err))
		return nil
	}
	return msgs
}

func success(msg string) flashMessage {
	return flashMessage{Kind: flashSuccess, Message: msg}
}

func failure(msg string) flashMessage {
	return flashMessage{Kind: flashError, Message: msg}
}
