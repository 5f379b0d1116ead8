package gtfsrt

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gorilla/mux"

	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// Server serves GTFS-Realtime feeds over HTTP.
type Server struct {
	log       *log.Logger
	assembler *Assembler
}

// NewServer builds a Server backed by assembler.
func NewServer(log *log.Logger, assembler *Assembler) *Server {
	return &Server{log: log, assembler: assembler}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// debugVehiclePosition is the plain JSON shape served under ?debug, mirroring
// the teacher's JsonTripUpdateResponseWrapper rather than the protobuf JSON
// mapping.
type debugVehiclePosition struct {
	VehicleId    string            `json:"vehicle_id"`
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	Timestamp    int64             `json:"timestamp"`
	Trip         *model.TripDescriptor `json:"trip,omitempty"`
	CurrentStopId *string          `json:"current_stop_id,omitempty"`
	CurrentStatus model.StopStatus `json:"current_status,omitempty"`
}

type debugResponse struct {
	Timestamp        int64                   `json:"timestamp"`
	VehiclePositions []debugVehiclePosition  `json:"vehicle_positions,omitempty"`
	TripUpdates      []*model.TripMetrics    `json:"trip_updates,omitempty"`
}

func (s *Server) vehiclePositions(w http.ResponseWriter, r *http.Request) {
	if _, debug := r.URL.Query()["debug"]; debug {
		s.writeDebugVehiclePositions(w, r.Context())
		return
	}

	feed, err := s.assembler.BuildVehiclePositionsSnapshot(r.Context())
	if err != nil {
		s.log.Printf("gtfsrt: build vehicle positions snapshot: %s", err)
		http.Error(w, "error serving request", http.StatusInternalServerError)
		return
	}
	s.writeProtobuf(w, feed)
}

func (s *Server) tripUpdates(w http.ResponseWriter, r *http.Request) {
	if _, debug := r.URL.Query()["debug"]; debug {
		s.writeDebugTripUpdates(w, r.Context())
		return
	}

	feed, err := s.assembler.BuildTripUpdatesSnapshot(r.Context())
	if err != nil {
		s.log.Printf("gtfsrt: build trip updates snapshot: %s", err)
		http.Error(w, "error serving request", http.StatusInternalServerError)
		return
	}
	s.writeProtobuf(w, feed)
}

func (s *Server) writeProtobuf(w http.ResponseWriter, feed *gtfs.FeedMessage) {
	payload, err := Marshal(feed)
	if err != nil {
		s.log.Printf("gtfsrt: marshal feed to protobuf: %s", err)
		http.Error(w, "error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	if _, err := w.Write(payload); err != nil {
		s.log.Printf("gtfsrt: write protobuf response: %s", err)
	}
}

func (s *Server) writeDebugVehiclePositions(w http.ResponseWriter, ctx context.Context) {
	vehicles, err := s.assembler.store.GetVehicles(ctx)
	if err != nil {
		s.log.Printf("gtfsrt: load vehicles for debug response: %s", err)
		http.Error(w, "error serving request", http.StatusInternalServerError)
		return
	}

	now := s.assembler.now()
	var positions []debugVehiclePosition
	for _, v := range vehicles {
		if !v.TechnicallyLoggedOn || v.DifferentialDeleted || v.Activity == nil {
			continue
		}
		last := v.Activity.LastPosition()
		if last == nil {
			continue
		}
		position := debugVehiclePosition{
			VehicleId: v.VehicleRef,
			Latitude:  last.Latitude,
			Longitude: last.Longitude,
			Timestamp: last.Timestamp,
		}
		if v.OperationallyLoggedOn {
			position.Trip = v.Activity.TripDescriptor
			if metrics := v.Activity.TripMetrics; metrics != nil {
				position.CurrentStopId = metrics.CurrentStopId
				position.CurrentStatus = metrics.CurrentStopStatus
			}
		}
		positions = append(positions, position)
	}

	s.writeJSON(w, debugResponse{Timestamp: now, VehiclePositions: positions})
}

func (s *Server) writeDebugTripUpdates(w http.ResponseWriter, ctx context.Context) {
	vehicles, err := s.assembler.store.GetVehicles(ctx)
	if err != nil {
		s.log.Printf("gtfsrt: load vehicles for debug response: %s", err)
		http.Error(w, "error serving request", http.StatusInternalServerError)
		return
	}

	now := s.assembler.now()
	var metrics []*model.TripMetrics
	for _, v := range vehicles {
		if v.OperationallyLoggedOn && v.Activity != nil && v.Activity.TripMetrics != nil {
			metrics = append(metrics, v.Activity.TripMetrics)
		}
	}

	s.writeJSON(w, debugResponse{Timestamp: now, TripUpdates: metrics})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload debugResponse) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		s.log.Printf("gtfsrt: marshal debug response: %s", err)
		http.Error(w, "error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(jsonBytes); err != nil {
		s.log.Printf("gtfsrt: write json response: %s", err)
	}
}

type defaultHandler struct{}

func (h *defaultHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

// NewHTTPServer builds the *http.Server exposing /vehicle-positions.pbf and
// /trip-updates.pbf, following the teacher's createServer shape.
func NewHTTPServer(log *log.Logger, assembler *Assembler, port int) *http.Server {
	server := NewServer(log, assembler)

	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Handle("/", &defaultHandler{})
	r.HandleFunc("/vehicle-positions.pbf", server.vehiclePositions).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/trip-updates.pbf", server.tripUpdates).Methods(http.MethodGet, http.MethodOptions)

	return &http.Server{
		Addr:         strings.Join([]string{"0.0.0.0", strconv.Itoa(port)}, ":"),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Handler:      r,
	}
}
