package middlewares

import (
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
)

// DefaultCorrelationHeader carries a caller supplied request ID
const DefaultCorrelationHeader = "X-Correlation-ID"

var correlationIDRegexp = regexp.MustCompile(`^[\w-]{3,64}$`)

// CorrelationMw adopts a well formed caller request ID as the transaction ID
// for the request and echoes it back.  It must run before LoggingMw.
type CorrelationMw struct {
	headerName string
	next       http.Handler
}

func NewCorrelationMw(headerName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewCorrelation(headerName, next)
	}
}

func NewCorrelation(headerName string, next http.Handler) *CorrelationMw {
	if headerName == "" {
		headerName = DefaultCorrelationHeader
	}

	return &CorrelationMw{headerName: http.CanonicalHeaderKey(headerName), next: next}
}

func (mw *CorrelationMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(mw.headerName)

	switch {
	case id == "":
	case correlationIDRegexp.MatchString(id):
		rw.Header().Set(mw.headerName, id)
		r = r.WithContext(logging.WithTxnID(r.Context(), id))
	default:
		logging.Logger(r.Context()).Debugf("ignoring malformed %s header", mw.headerName)
	}

	mw.next.ServeHTTP(rw, r)
}
