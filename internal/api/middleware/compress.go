package middleware

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
)

// Compress gzips responses larger than minSize for clients that accept it.
// It wraps the whole router rather than running as gin middleware so the
// compressed writer sits below gin's own. WebSocket upgrades bypass it;
// they need the raw connection.
func Compress(h http.Handler, minSize int) (http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(minSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip wrapper: %w", err)
	}
	gz := wrap(h)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			h.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	}), nil
}
