// Package rpc exposes session/facade.go's operations over HTTP+JSON,
// grounded on the teacher's own referenced-but-unseen s.rpc *rpcServer /
// newRPCServer / c.rpc.Start(host, port) call sites in session/session.go:
// that code clearly exists upstream, just wasn't in the retrieval pack, so
// this package supplies it fresh from the call-site contract (routed with
// gorilla/mux, per SPEC_FULL.md §4.H).
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kagen/torrentd/session"
)

// Server adapts a *session.Session to an HTTP API; Start runs it in the
// background on host:port until Close is called.
type Server struct {
	session  *session.Session
	listener net.Listener
	server   *http.Server
}

func New(s *session.Session) *Server {
	return &Server{session: s}
}

// Start binds host:port and serves requests on a background goroutine.
// Mirrors c.rpc.Start(host, port)'s call shape.
func (srv *Server) Start(host string, port uint16) error {
	reg := prometheus.NewRegistry()
	if err := srv.session.Metrics().Register(reg); err != nil {
		return err
	}

	r := mux.NewRouter()
	r.HandleFunc("/torrents", srv.listTorrents).Methods(http.MethodGet)
	r.HandleFunc("/torrents", srv.addTorrent).Methods(http.MethodPost)
	r.HandleFunc("/torrents/{infohash}", srv.getTorrent).Methods(http.MethodGet)
	r.HandleFunc("/torrents/{infohash}", srv.removeTorrent).Methods(http.MethodDelete)
	r.HandleFunc("/alerts", srv.popAlert).Methods(http.MethodGet)
	r.HandleFunc("/settings/max-uploads", srv.setMaxUploads).Methods(http.MethodPut)
	r.HandleFunc("/settings/max-connections", srv.setMaxConnections).Methods(http.MethodPut)
	r.HandleFunc("/settings/upload-rate-limit", srv.setUploadRateLimit).Methods(http.MethodPut)
	r.HandleFunc("/settings/download-rate-limit", srv.setDownloadRateLimit).Methods(http.MethodPut)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	addr := net.JoinHostPort(host, portString(port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv.listener = l
	srv.server = &http.Server{Handler: r}
	go srv.server.Serve(l)
	return nil
}

func (srv *Server) Close() error {
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Close()
}

type torrentView struct {
	InfoHash string `json:"info_hash"`
	Name     string `json:"name"`
	State    int    `json:"state"`
}

func viewOf(t session.Torrent) torrentView {
	ih := t.InfoHash()
	return torrentView{InfoHash: hex.EncodeToString(ih[:]), Name: t.Name(), State: int(t.State())}
}

func (srv *Server) listTorrents(w http.ResponseWriter, r *http.Request) {
	torrents := srv.session.GetTorrents()
	views := make([]torrentView, 0, len(torrents))
	for _, t := range torrents {
		views = append(views, viewOf(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (srv *Server) addTorrent(w http.ResponseWriter, r *http.Request) {
	dest := r.URL.Query().Get("dest")
	if dest == "" {
		dest = "."
	}
	t, err := srv.session.AddTorrent(r.Body, dest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(t))
}

func (srv *Server) getTorrent(w http.ResponseWriter, r *http.Request) {
	ih, err := parseInfoHash(mux.Vars(r)["infohash"])
	if err != nil {
		writeError(w, err)
		return
	}
	t, ok := srv.session.GetTorrent(ih)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (srv *Server) removeTorrent(w http.ResponseWriter, r *http.Request) {
	ih, err := parseInfoHash(mux.Vars(r)["infohash"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := srv.session.RemoveTorrent(ih); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) popAlert(w http.ResponseWriter, r *http.Request) {
	a, ok := srv.session.PopAlert()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type intSetting struct {
	Value int `json:"value"`
}

func (srv *Server) setMaxUploads(w http.ResponseWriter, r *http.Request) {
	withIntBody(w, r, srv.session.SetMaxUploads)
}

func (srv *Server) setMaxConnections(w http.ResponseWriter, r *http.Request) {
	withIntBody(w, r, srv.session.SetMaxConnections)
}

func (srv *Server) setUploadRateLimit(w http.ResponseWriter, r *http.Request) {
	withIntBody(w, r, srv.session.SetUploadRateLimit)
}

func (srv *Server) setDownloadRateLimit(w http.ResponseWriter, r *http.Request) {
	withIntBody(w, r, srv.session.SetDownloadRateLimit)
}

func withIntBody(w http.ResponseWriter, r *http.Request, apply func(int)) {
	var body intSetting
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}
	apply(body.Value)
	w.WriteHeader(http.StatusNoContent)
}

func parseInfoHash(s string) (ih [20]byte, err error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ih, err
	}
	if len(b) != 20 {
		return ih, errors.New("rpc: info hash must be 20 bytes")
	}
	copy(ih[:], b)
	return ih, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func portString(p uint16) string {
	return strconv.Itoa(int(p))
}
