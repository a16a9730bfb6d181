// Package bridge exposes the slaves of the gateway over HTTP.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/coalalib/casan"
	"github.com/coalalib/casan/config"
	cerr "github.com/coalalib/casan/errors"
	m "github.com/coalalib/casan/message"
	log "github.com/ndmsystems/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodySize = 64 * 1024

// Core is what the bridge needs from the engine.
type Core interface {
	FindResource(sid int, path []string) (*casan.Resource, error)
	Request(sid int, req *m.CoAPMessage) (*m.CoAPMessage, error)
	ResourceListText() []byte
	CacheGet(sid int, req *m.CoAPMessage) *m.CoAPMessage
	CacheAdd(sid int, req, reply *m.CoAPMessage)
	Status() casan.Status
	ResetSlave(sid int) error
}

type Bridge struct {
	core Core
	cfg  *config.Config
	mux  *http.ServeMux

	admin, casan, wellKnown string
}

func New(core Core, cfg *config.Config) *Bridge {
	b := &Bridge{
		core:      core,
		cfg:       cfg,
		mux:       http.NewServeMux(),
		admin:     "/" + strings.Trim(cfg.Namespaces.Admin, "/"),
		casan:     "/" + strings.Trim(cfg.Namespaces.Casan, "/"),
		wellKnown: "/" + strings.Trim(cfg.Namespaces.WellKnown, "/"),
	}

	b.mux.Handle(b.casan+"/", b.count("casan", http.HandlerFunc(b.handleCasan)))
	b.mux.Handle(b.wellKnown+"/casan", b.count("well-known", http.HandlerFunc(b.handleWellKnown)))
	b.mux.Handle(b.admin+"/", b.count("admin", http.HandlerFunc(b.handleAdmin)))
	b.mux.Handle("/metrics", promhttp.Handler())
	return b
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (b *Bridge) count(namespace string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		casan.Metrics.HTTPRequests.WithLabelValues(namespace, strconv.Itoa(sw.status)).Inc()
	})
}

var methods = map[string]m.CoapCode{
	http.MethodGet:    m.GET,
	http.MethodHead:   m.GET,
	http.MethodPost:   m.POST,
	http.MethodPut:    m.PUT,
	http.MethodDelete: m.DELETE,
}

// splitCasanPath turns "/casan/42/a/b" into 42 and [a b].
func (b *Bridge) splitCasanPath(path string) (int, []string, int) {
	if strings.Contains(path, "..") || strings.HasSuffix(path, "/") {
		return 0, nil, http.StatusBadRequest
	}
	parts := strings.Split(strings.TrimPrefix(path, b.casan+"/"), "/")
	if len(parts) < 2 {
		return 0, nil, http.StatusNotFound
	}
	sid, err := strconv.Atoi(parts[0])
	if err != nil || sid <= 0 {
		return 0, nil, http.StatusNotFound
	}
	for _, p := range parts[1:] {
		if p == "" {
			return 0, nil, http.StatusBadRequest
		}
	}
	return sid, parts[1:], http.StatusOK
}

func queryOptions(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "&")
}

func (b *Bridge) handleCasan(w http.ResponseWriter, r *http.Request) {
	code, ok := methods[r.Method]
	if !ok {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sid, path, status := b.splitCasanPath(r.URL.Path)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	if _, err := b.core.FindResource(sid, path); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil || len(payload) > maxBodySize {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	req := casan.NewRequest(code, path, queryOptions(r.URL.RawQuery), payload)

	if code == m.GET {
		if reply := b.core.CacheGet(sid, req); reply != nil {
			writeReply(w, reply)
			return
		}
	}

	reply, err := b.core.Request(sid, req)
	if err != nil {
		status := errorStatus(err)
		if status >= 500 {
			log.Info(fmt.Sprintf("%s %s: %s", r.Method, r.URL.Path, err))
		}
		http.Error(w, err.Error(), status)
		return
	}

	if code == m.GET {
		b.core.CacheAdd(sid, req, reply)
	}
	writeReply(w, reply)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, cerr.MessageTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, cerr.UnknownSlave), errors.Is(err, cerr.SlaveNotRunning), errors.Is(err, cerr.UnknownResource):
		return http.StatusNotFound
	case errors.Is(err, cerr.UnresponsiveSlave), errors.Is(err, cerr.RequestTimeout), errors.Is(err, cerr.EngineStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func contentType(reply *m.CoAPMessage) string {
	cf, ok := reply.GetContentFormat()
	if !ok {
		return "text/plain; charset=utf-8"
	}
	switch cf {
	case m.MediaTypeTextPlain:
		return "text/plain; charset=utf-8"
	case m.MediaTypeApplicationLinkFormat:
		return "application/link-format"
	case m.MediaTypeApplicationXML:
		return "application/xml"
	case m.MediaTypeApplicationExi:
		return "application/exi"
	case m.MediaTypeApplicationJSON:
		return "application/json"
	}
	return "application/octet-stream"
}

// httpStatus maps a CoAP response code to HTTP.
func httpStatus(code m.CoapCode) int {
	switch {
	case code.Class() == 2:
		return http.StatusOK
	case code == m.CoapCodeNotFound:
		return http.StatusNotFound
	case code == m.CoapCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case code.Class() == 4:
		return http.StatusBadRequest
	case code.Class() == 5:
		return http.StatusBadGateway
	}
	return http.StatusBadGateway
}

func writeReply(w http.ResponseWriter, reply *m.CoAPMessage) {
	w.Header().Set("Content-Type", contentType(reply))
	w.Header().Set("Content-Length", strconv.Itoa(len(reply.Payload)))
	if age, ok := reply.GetMaxAge(); ok {
		w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(age))
	}
	w.WriteHeader(httpStatus(reply.Code))
	w.Write(reply.Payload)
}

func (b *Bridge) handleWellKnown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/link-format")
	w.Write(b.core.ResourceListText())
}
