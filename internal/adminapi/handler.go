package adminapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jizhuozhi/hermes/broker/internal/cluster"
	"github.com/jizhuozhi/hermes/broker/internal/model"
	"github.com/jizhuozhi/hermes/broker/internal/registry"
)

// Handler serves the registry's admin/operator HTTP surface:
//   GET  /api/v1/registry/apps
//   GET  /api/v1/registry/apps/{name}
//   POST /api/v1/registry/broadcast
//   GET  /api/v1/registry/cluster
type Handler struct {
	directory *registry.Directory
	manager   cluster.BrokerManager
	logger    *zap.SugaredLogger
}

func New(directory *registry.Directory, manager cluster.BrokerManager, logger *zap.SugaredLogger) *Handler {
	return &Handler{directory: directory, manager: manager, logger: logger}
}

// appView is the admin-facing projection of a live handler.
type appView struct {
	UUID       string   `json:"uuid"`
	Name       string   `json:"name"`
	IP         string   `json:"ip"`
	InstanceID uint32   `json:"instanceId"`
	Roles      uint8    `json:"roles"`
	Published  []string `json:"published"`
	Consumed   []string `json:"consumed"`
}

func toAppView(h registry.ResponderHandler) appView {
	desc := h.AppDescriptor()
	published := make([]string, 0, len(h.PublishedServices()))
	for _, svc := range h.PublishedServices() {
		published = append(published, svc.Service)
	}
	consumed := make([]string, 0, len(h.ConsumedServices()))
	for _, svc := range h.ConsumedServices() {
		consumed = append(consumed, svc.Service)
	}
	return appView{
		UUID:       desc.UUID,
		Name:       desc.Name,
		IP:         desc.IP,
		InstanceID: uint32(h.InstanceID()),
		Roles:      h.Roles(),
		Published:  published,
		Consumed:   consumed,
	}
}

// ListApps handles GET /api/v1/registry/apps.
func (h *Handler) ListApps(w http.ResponseWriter, r *http.Request) {
	handlers := h.directory.FindAll()
	views := make([]appView, 0, len(handlers))
	for _, hh := range handlers {
		views = append(views, toAppView(hh))
	}
	JSON(w, http.StatusOK, map[string]any{"apps": views, "count": len(views)})
}

// GetAppsByName handles GET /api/v1/registry/apps/{name}.
func (h *Handler) GetAppsByName(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	handlers := h.directory.FindByAppName(name)
	views := make([]appView, 0, len(handlers))
	for _, hh := range handlers {
		views = append(views, toAppView(hh))
	}
	JSON(w, http.StatusOK, map[string]any{"name": name, "apps": views, "count": len(views)})
}

type broadcastRequest struct {
	AppName string `json:"app_name"`
	Type    string `json:"type"`
	Source  string `json:"source"`
	Data    any    `json:"data"`
}

// Broadcast handles POST /api/v1/registry/broadcast.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrJSON(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.AppName == "" {
		ErrJSON(w, http.StatusBadRequest, "app_name is required")
		return
	}

	env := model.EventEnvelope{
		Type:            req.Type,
		Source:          req.Source,
		DataContentType: "application/json",
		Data:            req.Data,
	}
	result := h.directory.Broadcast(r.Context(), req.AppName, env)
	JSON(w, http.StatusOK, map[string]any{
		"delivered": result.Delivered,
		"failed":    result.Failed,
	})
}

// GetCluster handles GET /api/v1/registry/cluster.
func (h *Handler) GetCluster(w http.ResponseWriter, r *http.Request) {
	if h.manager.IsStandalone() {
		JSON(w, http.StatusOK, map[string]any{"standalone": true, "brokers": []cluster.Broker{}})
		return
	}
	brokers, err := h.manager.CurrentBrokers(r.Context())
	if err != nil {
		ErrJSON(w, http.StatusBadGateway, "list brokers: "+err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{"standalone": false, "brokers": brokers})
}

// Mux builds the routed http.Handler for the admin surface, wrapped with
// Recovery and Authenticate.
func Mux(h *Handler, accessKey, secretKey string, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/registry/apps", h.ListApps)
	mux.HandleFunc("GET /api/v1/registry/apps/{name}", h.GetAppsByName)
	mux.HandleFunc("POST /api/v1/registry/broadcast", h.Broadcast)
	mux.HandleFunc("GET /api/v1/registry/cluster", h.GetCluster)

	return Wrap(mux,
		func(next http.Handler) http.Handler { return Recovery(logger, next) },
		Authenticate(accessKey, secretKey, logger),
	)
}
