// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/melodarr/melodarr/internal/metrics"
	"github.com/melodarr/melodarr/internal/services/monitor"
)

// background pass budget; generous because a pass may touch every artist
const passTimeout = 30 * time.Minute

// MonitoringHandler triggers monitoring passes on demand.
type MonitoringHandler struct {
	service *monitor.Service
	metrics *metrics.Manager
}

func NewMonitoringHandler(service *monitor.Service, metricsManager *metrics.Manager) *MonitoringHandler {
	return &MonitoringHandler{service: service, metrics: metricsManager}
}

func (h *MonitoringHandler) Routes(r chi.Router) {
	r.Post("/monitoring/run", h.Run)
}

// Run kicks off a pass in the background and returns immediately. An
// overlapping request is accepted but the pass itself is a no-op.
func (h *MonitoringHandler) Run(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
		defer cancel()

		switch err := h.service.RunPass(ctx); {
		case errors.Is(err, monitor.ErrPassInFlight):
			if h.metrics != nil {
				h.metrics.MonitoringSkips.Inc()
			}
		case err != nil:
			log.Error().Err(err).Msg("Monitoring pass failed")
		default:
			if h.metrics != nil {
				h.metrics.MonitoringPasses.Inc()
			}
		}
	}()

	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
