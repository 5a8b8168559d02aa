package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
)

// deviceView is the JSON form of an inventory entry.
type deviceView struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
}

func newDeviceView(d config.DeviceConfig) deviceView {
	return deviceView{ID: d.ID, Name: d.Name, Protocol: d.Protocol, Address: d.Address}
}

// handleListDevices returns the configured device inventory, optionally
// filtered by ?protocol=.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	protocol := r.URL.Query().Get("protocol")

	devices := s.inventory.Devices()
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		if protocol != "" && d.Protocol != protocol {
			continue
		}
		out = append(out, newDeviceView(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": out,
		"count":   len(out),
	})
}

// handleGetDevice returns one inventory entry.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := s.inventory.Device(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(d))
}
