// Diagnostic and manual-trigger HTTP endpoints for a running station,
// adapted from the teacher's http_server.go: table-rendered listings of
// the station's persisted/in-memory state plus a handful of endpoints
// that simulate the hardware events a real charging connector would
// report (plug in/out, a local idTag swipe, a fault), so the control
// plane can be exercised without real EVSE hardware attached.
package main

import (
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/julienschmidt/httprouter"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// startControlServer binds every control endpoint onto an httprouter.Router
// and starts serving on port (or a random free port if port == "" or "0"),
// returning the address it bound.
func (s *station) startControlServer(port string) string {
	router := httprouter.New()

	router.GET("/list", s.handleListEndpoints)
	router.GET("/connectors", s.handleListConnectors)
	router.GET("/fifo", s.handleListFifo)
	router.GET("/config", s.handleListConfig)
	router.GET("/db", s.handleListDB)
	router.GET("/plugin/:connectorId", s.handlePlugIn)
	router.GET("/unplug/:connectorId", s.handlePlugOut)
	router.GET("/fault/:connectorId", s.handleFault)
	router.GET("/clearfault/:connectorId", s.handleClearFault)
	router.GET("/swipe/:connectorId/:idTag", s.handleSwipe)
	router.GET("/stop/:connectorId", s.handleStop)

	if port == "" {
		port = "0"
	}
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		s.log.WithError(err).Fatal("failed to start control server")
	}
	go http.Serve(listener, router)

	addr := listener.Addr().String()
	s.log.WithField("addr", addr).Info("control server started")
	return addr
}

var controlEndpoints = []string{
	"/list", "/connectors", "/fifo", "/config", "/db",
	"/plugin/:connectorId", "/unplug/:connectorId",
	"/fault/:connectorId", "/clearfault/:connectorId",
	"/swipe/:connectorId/:idTag", "/stop/:connectorId",
}

func (s *station) handleListEndpoints(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	fmt.Fprintln(w, "Available endpoints:")
	for _, e := range controlEndpoints {
		fmt.Fprintf(w, "\t%s\n", e)
	}
}

func (s *station) handleListConnectors(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Connector", "Status", "ErrorCode", "TxId", "IdTag", "Available"})
	for _, c := range s.arena.All() {
		status, errCode := c.Status()
		txId, hasTx := c.TransactionId()
		idTag, _ := c.IdTag()
		txIdCol := ""
		if hasTx {
			txIdCol = strconv.Itoa(txId)
		}
		t.AppendRow(table.Row{c.ID, status, errCode, txIdCol, idTag, c.IsAvailable()})
	}
	t.Render()
}

func (s *station) handleListFifo(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Id", "Action", "Payload"})
	for _, e := range s.fifoQ.Entries() {
		payload := string(e.Payload)
		if len(payload) > 150 {
			payload = payload[:150] + "..."
		}
		t.AppendRow(table.Row{e.ID, e.Action, payload})
	}
	t.Render()
}

func (s *station) handleListConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	entries, err := s.cfg.All(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Key", "Value"})
	for k, v := range entries {
		t.AppendRow(table.Row{k, v})
	}
	t.Render()
}

func (s *station) handleListDB(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	entries, err := s.kvStore.All()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Key", "Value"})
	for _, e := range entries {
		v := e.Value
		if len(v) > 150 {
			v = v[:150] + "..."
		}
		t.AppendRow(table.Row{e.Key, v})
	}
	t.Render()
}

func connectorIdParam(ps httprouter.Params) (int, bool) {
	id, err := strconv.Atoi(ps.ByName("connectorId"))
	return id, err == nil
}

// handlePlugIn simulates a physical plug-in event on a connector,
// transitioning it Available -> Preparing, mirroring the teacher's
// /preparing endpoint.
func (s *station) handlePlugIn(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	connectorId, ok := connectorIdParam(ps)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	c := s.arena.Get(connectorId)
	if c == nil {
		http.Error(w, "no such connector", http.StatusNotFound)
		return
	}
	if !c.PlugIn() {
		http.Error(w, "connector not available", http.StatusConflict)
		return
	}
	s.txManager.EmitStatus(connectorId)
	w.WriteHeader(http.StatusNoContent)
}

// handlePlugOut simulates an EV unplug, stopping any running transaction
// for EVDisconnected first.
func (s *station) handlePlugOut(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	connectorId, ok := connectorIdParam(ps)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	c := s.arena.Get(connectorId)
	if c == nil {
		http.Error(w, "no such connector", http.StatusNotFound)
		return
	}
	if _, running := c.IdTag(); running {
		if err := s.txManager.StopLocal(r.Context(), connectorId, types.ReasonEVDisconnected); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	c.PlugOut()
	s.txManager.EmitStatus(connectorId)
	w.WriteHeader(http.StatusNoContent)
}

func (s *station) handleFault(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	connectorId, ok := connectorIdParam(ps)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	c := s.arena.Get(connectorId)
	if c == nil {
		http.Error(w, "no such connector", http.StatusNotFound)
		return
	}
	c.Fault("OtherError")
	s.txManager.EmitStatus(connectorId)
	w.WriteHeader(http.StatusNoContent)
}

func (s *station) handleClearFault(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	connectorId, ok := connectorIdParam(ps)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	c := s.arena.Get(connectorId)
	if c == nil {
		http.Error(w, "no such connector", http.StatusNotFound)
		return
	}
	c.ClearFault()
	s.txManager.EmitStatus(connectorId)
	w.WriteHeader(http.StatusNoContent)
}

// handleSwipe simulates a local idTag presentation, resolving it through
// the three authorities of spec §4.3 and starting a transaction on
// Accepted, satisfying the offline-authorization scenario of spec §8.
func (s *station) handleSwipe(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	connectorId, ok := connectorIdParam(ps)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	idTag := types.IdTag(ps.ByName("idTag"))

	info, err := s.txManager.RequestAuthorization(r.Context(), connectorId, idTag)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "idTag %s: %s\n", idTag, info.Status)
}

func (s *station) handleStop(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	connectorId, ok := connectorIdParam(ps)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	if err := s.txManager.StopLocal(r.Context(), connectorId, types.ReasonLocal); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
