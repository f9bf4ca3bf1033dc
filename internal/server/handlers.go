package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brpsystems/applinks/internal/device"
	"github.com/brpsystems/applinks/internal/metrics"
	"github.com/brpsystems/applinks/internal/provider"
	"github.com/brpsystems/applinks/internal/storage"
)

const maxBodyBytes = 4096

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeInternalError returns the generic failure response. Backend detail
// stays in the logs, never in the body.
func writeInternalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}

// providerCodeFrom reads the provider code from a JSON body or, for form
// posts, from the providerCode field.
func providerCodeFrom(r *http.Request) string {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			ProviderCode string `json:"providerCode"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			return ""
		}
		return body.ProviderCode
	}
	return r.FormValue("providerCode")
}

// handleStore validates the provider code, resolves the device identity, and
// persists one attribution record for the platform.
func (s *Server) handleStore(p storage.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := providerCodeFrom(r)
		if !provider.ValidCode(code) {
			metrics.InvalidCodes.Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid provider code"})
			return
		}

		ip := s.clientIP(r)
		deviceID := device.Resolve(w, r)

		rec := storage.Record{
			IP:           ip,
			ProviderCode: code,
			DeviceID:     deviceID,
			CreatedAt:    storage.NowMillis(time.Now()),
		}
		if err := s.store.Put(p, rec); err != nil {
			metrics.StoreErrors.WithLabelValues("put").Inc()
			log.Error().Err(err).Str("platform", string(p)).Msg("record store failed")
			writeInternalError(w)
			return
		}

		metrics.RecordsStored.WithLabelValues(string(p)).Inc()
		log.Info().
			Str("platform", string(p)).
			Str("ip", ip).
			Str("code", code).
			Msg("record stored")
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleRetrieve hands out (and consumes) the newest eligible record for the
// caller's IP. Not-found is an expected outcome, distinct from failure.
func (s *Server) handleRetrieve(p storage.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)

		rec, err := s.store.Take(p, ip)
		if errors.Is(err, storage.ErrNotFound) {
			metrics.RetrievalsNotFound.WithLabelValues(string(p)).Inc()
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
			return
		}
		if err != nil {
			metrics.StoreErrors.WithLabelValues("take").Inc()
			log.Error().Err(err).Str("platform", string(p)).Msg("record retrieval failed")
			writeInternalError(w)
			return
		}

		metrics.RecordsRetrieved.WithLabelValues(string(p)).Inc()
		log.Info().
			Str("platform", string(p)).
			Str("ip", ip).
			Str("code", rec.ProviderCode).
			Msg("record retrieved")
		writeJSON(w, http.StatusOK, map[string]string{"providerCode": rec.ProviderCode})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"stats": map[string]int{
			"totalVisits":    s.visits.Total(),
			"uniqueVisitors": s.visits.UniqueIPs(),
		},
	})
}

// handleLatestVisit serves the legacy latest-visit lookup kept for older app
// versions.
func (s *Server) handleLatestVisit(w http.ResponseWriter, r *http.Request) {
	ip := s.clientIP(r)

	v, count := s.visits.Latest(ip)
	if v == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "No visits found",
			"message": "No visit records found for this user",
			"user":    map[string]string{"ip": ip},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"latestVisit": v,
		"totalVisits": count,
		"user":        map[string]string{"ip": ip},
	})
}
