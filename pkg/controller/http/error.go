package http

import (
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
)

// handleError writes a plain error response for requests that have no form
// to re-render (API, websocket upgrade, panics). Error details stay in the
// log.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.From(r.Context())

	switch {
	case goerr.HasTag(err, errs.TagNotFound):
		logger.Warn("Not Found", "error", err)
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)

	case goerr.HasTag(err, errs.TagValidation):
		logger.Warn("Bad Request", "error", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

	case goerr.HasTag(err, errs.TagUnauthorized):
		logger.Warn("Unauthorized", "error", err)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

	case goerr.HasTag(err, errs.TagForbidden):
		logger.Warn("Forbidden", "error", err)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)

	case goerr.HasTag(err, errs.TagProvider):
		logger.Error("Identity Provider Error", "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)

	default:
		errs.Handle(r.Context(), err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
