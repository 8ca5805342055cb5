package runtime

import (
	"net/http"
	"time"

	"github.com/drblury/docflow/internal/runtime/jsoncodec"
	brokers "github.com/drblury/docflow/transport"
)

// StatusPath is where the processing snapshot is served.
const StatusPath = "/api/status"

// Status is the JSON document served on StatusPath.
type Status struct {
	Service        string               `json:"service"`
	Transport      string               `json:"transport"`
	Capabilities   brokers.Capabilities `json:"capabilities"`
	RequestTopic   string               `json:"request_topic"`
	ResponseTopic  string               `json:"response_topic"`
	StartedAt      time.Time            `json:"started_at"`
	UptimeSeconds  float64              `json:"uptime_seconds"`
	Specifications []string             `json:"specifications"`
	Stats          StatsSnapshot        `json:"stats"`
}

func (s *Service) registerStatusEndpoint() {
	if s.Conf == nil || !s.Conf.StatusEnabled {
		return
	}
	port := s.Conf.StatusPort
	if port == 0 {
		port = 8081
	}
	s.RegisterHTTPHandler(port, StatusPath, http.HandlerFunc(s.handleGetStatus))
}

// Status returns the current processing snapshot.
func (s *Service) Status() Status {
	status := Status{
		StartedAt:    s.startedAt,
		Capabilities: s.capabilities,
		Stats:        s.stats.Snapshot(),
	}
	if !s.startedAt.IsZero() {
		status.UptimeSeconds = time.Since(s.startedAt).Seconds()
	}
	if s.Conf != nil {
		status.Service = s.Conf.GetServiceName()
		status.Transport = s.Conf.GetPubSubSystem()
		status.RequestTopic = s.Conf.RequestSubscription
		status.ResponseTopic = s.Conf.ResponseTopic
	}
	if s.registry != nil {
		status.Specifications = s.registry.Types()
	}
	return status
}

func (s *Service) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := jsoncodec.Encode(w, s.Status()); err != nil {
		s.Logger.Error("Failed to encode status", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
