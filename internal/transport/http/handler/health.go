package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

type HealthHandler struct {
	appName   string
	env       string
	startedAt time.Time
	probes    map[string]Probe
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(appName, env string, startedAt time.Time, probes map[string]Probe) *HealthHandler {
	return &HealthHandler{appName: appName, env: env, startedAt: startedAt, probes: probes}
}

// Check runs every probe concurrently under one deadline.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var (
		mu       sync.Mutex
		statuses = make(map[string]dependencyStatus, len(h.probes))
		g        errgroup.Group
	)
	for name, probe := range h.probes {
		g.Go(func() error {
			st := dependencyStatus{OK: true}
			if err := probe(ctx); err != nil {
				st = dependencyStatus{OK: false, Message: err.Error()}
			}
			mu.Lock()
			statuses[name] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	statusCode := http.StatusOK
	for _, st := range statuses {
		if !st.OK {
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(statusCode, gin.H{
		"app":          h.appName,
		"env":          h.env,
		"uptime_sec":   int(time.Since(h.startedAt).Seconds()),
		"dependencies": statuses,
	})
}
