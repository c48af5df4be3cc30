package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/drivers"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
	"github.com/jake-scott/flair-bridge/version"
)

// Bridge is the part of the controller exposed over HTTP
type Bridge interface {
	Nodes() []nodes.Snapshot
	Node(addr address.Address) (nodes.Snapshot, error)
	HandleCommand(ctx context.Context, addr address.Address, command, value string) error
	Discover(ctx context.Context) bool
	Status() bool
}

type NodesHandler struct {
	bridge Bridge
}

func NewNodesHandler(b Bridge) *NodesHandler {
	return &NodesHandler{bridge: b}
}

type commandRequest struct {
	Command string `json:"command"`
	Value   string `json:"value"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Nodes   int    `json:"nodes"`
	Version string `json:"version"`
}

type discoverResponse struct {
	Started bool `json:"started"`
}

// Register adds the handler's routes to r
func (h *NodesHandler) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/nodes", h.list).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{address}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{address}/commands", h.command).Methods(http.MethodPost)
	r.HandleFunc("/discover", h.discover).Methods(http.MethodPost)
}

func (h *NodesHandler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Nodes:   len(h.bridge.Nodes()),
		Version: version.Version,
	}

	status := http.StatusOK
	if !h.bridge.Status() {
		resp.Status = "not started"
		status = http.StatusServiceUnavailable
	}

	sendJSONResponse(w, r, status, resp)
}

func (h *NodesHandler) list(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, r, http.StatusOK, h.bridge.Nodes())
}

func (h *NodesHandler) get(w http.ResponseWriter, r *http.Request) {
	addr := address.Address(mux.Vars(r)["address"])

	snap, err := h.bridge.Node(addr)
	if err != nil {
		sendError(w, r, statusFor(err), err)
		return
	}

	sendJSONResponse(w, r, http.StatusOK, snap)
}

func (h *NodesHandler) command(w http.ResponseWriter, r *http.Request) {
	addr := address.Address(mux.Vars(r)["address"])

	var req commandRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		sendError(w, r, http.StatusBadRequest, err)
		return
	}

	req.Command = strings.ToUpper(strings.TrimSpace(req.Command))
	if req.Command == "" {
		sendError(w, r, http.StatusBadRequest, errors.New("command is required"))
		return
	}

	logging.Logger(r.Context()).Infof("Command %s %s for %s", req.Command, req.Value, addr)

	if err := h.bridge.HandleCommand(r.Context(), addr, req.Command, req.Value); err != nil {
		sendError(w, r, statusFor(err), err)
		return
	}

	// reply with the node as it is after the command
	if snap, err := h.bridge.Node(addr); err == nil {
		sendJSONResponse(w, r, http.StatusOK, snap)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NodesHandler) discover(w http.ResponseWriter, r *http.Request) {
	if !h.bridge.Discover(r.Context()) {
		sendJSONResponse(w, r, http.StatusConflict, discoverResponse{Started: false})
		return
	}

	sendJSONResponse(w, r, http.StatusAccepted, discoverResponse{Started: true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, nodes.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, drivers.ErrUnknownCommand), errors.Is(err, drivers.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, drivers.ErrNotDiscovered):
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}
