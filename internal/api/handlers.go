package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/origo-stack/performance-simulator/internal/dispatcher"
	"github.com/origo-stack/performance-simulator/internal/presets"
	"github.com/origo-stack/performance-simulator/internal/ratedist"
	"github.com/origo-stack/performance-simulator/internal/store"
)

// Handlers bundles the collaborators the admission layer fronts.
type Handlers struct {
	Store      *store.Store
	Registry   *ratedist.Registry
	Dispatcher *dispatcher.Dispatcher
	Presets    *presets.Store
	TargetURL  string
	Method     string
}

// StartTest handles POST /tests/start.
func (h *Handlers) StartTest(c *gin.Context) {
	var req StartTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := ValidateStartRequest(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := ToRunConfig(req, h.TargetURL, h.Method)
	if _, err := dispatcher.SelectMode(cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state := h.Store.Create(cfg)
	go h.Dispatcher.Run(state)

	c.JSON(http.StatusAccepted, gin.H{"test_id": state.TestID, "status": "starting"})
}

// StopTestRequestBody is the body of POST /tests/stop.
type StopTestRequestBody struct {
	TestID string `json:"test_id" binding:"required"`
}

// StopTest handles POST /tests/stop.
func (h *Handlers) StopTest(c *gin.Context) {
	var req StopTestRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	state, ok := h.Store.Get(req.TestID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "test " + req.TestID + " not found"})
		return
	}
	if !state.RequestStop() {
		c.JSON(http.StatusNotFound, gin.H{"error": "test " + req.TestID + " not found"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"test_id": req.TestID, "status": "stopping"})
}

// GetStatus handles GET /tests/status/:id.
func (h *Handlers) GetStatus(c *gin.Context) {
	testID := c.Param("id")
	state, ok := h.Store.Get(testID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "test " + testID + " not found"})
		return
	}
	snap := state.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"test_id":        snap.TestID,
		"status":         snap.Status,
		"metrics":        snap.Metrics,
		"response_times": snap.ResponseTimes,
	})
}

// ListTests handles GET /tests/.
func (h *Handlers) ListTests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tests":  h.Store.ListAll(),
		"active": h.Store.ListRunning(),
	})
}

// ListPlugins handles GET /plugins.
func (h *Handlers) ListPlugins(c *gin.Context) {
	names := h.Registry.List()
	out := make([]ratedist.Metadata, 0, len(names))
	for _, name := range names {
		shape, err := h.Registry.Instantiate(name, map[string]any{})
		if err != nil {
			continue
		}
		out = append(out, shape.Metadata())
	}
	c.JSON(http.StatusOK, out)
}

// GetPlugin handles GET /plugins/:name.
func (h *Handlers) GetPlugin(c *gin.Context) {
	name := c.Param("name")
	shape, err := h.Registry.Instantiate(name, map[string]any{})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "plugin '" + name + "' not found"})
		return
	}
	c.JSON(http.StatusOK, shape.Metadata())
}

// GetPluginParameters handles GET /plugins/:name/parameters.
func (h *Handlers) GetPluginParameters(c *gin.Context) {
	name := c.Param("name")
	shape, err := h.Registry.Instantiate(name, map[string]any{})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "plugin '" + name + "' not found"})
		return
	}
	c.JSON(http.StatusOK, shape.Metadata().Parameters)
}

// ListDistributions handles GET /distributions.
func (h *Handlers) ListDistributions(c *gin.Context) {
	c.JSON(http.StatusOK, h.Registry.List())
}

// ValidateConfigRequest is the body of POST /distributions/:name/validate.
type ValidateConfigRequest struct {
	Config map[string]any `json:"config"`
}

// ValidateDistribution handles POST /distributions/:name/validate.
func (h *Handlers) ValidateDistribution(c *gin.Context) {
	name := c.Param("name")
	if h.Registry.Get(name) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "distribution '" + name + "' not found"})
		return
	}

	var req ValidateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Config = map[string]any{}
	}
	if req.Config == nil {
		req.Config = map[string]any{}
	}

	config, err := ratedist.NormalizeConfig(name, req.Config)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "errors": []string{err.Error()}})
		return
	}
	errs := ratedist.ValidateConfig(h.Registry, name, config, "config")
	c.JSON(http.StatusOK, gin.H{"valid": len(errs) == 0, "errors": errs})
}

// InstantiateDistribution handles POST /distributions/:name/instantiate.
func (h *Handlers) InstantiateDistribution(c *gin.Context) {
	name := c.Param("name")
	shape, err := h.Registry.Instantiate(name, map[string]any{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to instantiate: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plugin_name": name,
		"instance_id": name + "-" + time.Now().UTC().Format("20060102T150405.000000000"),
		"metadata":    shape.Metadata(),
	})
}

// PresetRequest is the body of POST/PUT /presets[/:id].
type PresetRequest struct {
	Name   string         `json:"name" binding:"required"`
	Config map[string]any `json:"config" binding:"required"`
}

// ListPresets handles GET /presets.
func (h *Handlers) ListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, h.Presets.List())
}

// CreatePreset handles POST /presets.
func (h *Handlers) CreatePreset(c *gin.Context) {
	var req PresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	preset, err := h.Presets.Create(req.Name, req.Config)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, preset)
}

// UpdatePreset handles PUT /presets/:id.
func (h *Handlers) UpdatePreset(c *gin.Context) {
	var req PresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	preset, err := h.Presets.Update(c.Param("id"), req.Name, req.Config)
	if err != nil {
		if errors.Is(err, presets.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preset)
}

// DeletePreset handles DELETE /presets/:id.
func (h *Handlers) DeletePreset(c *gin.Context) {
	if err := h.Presets.Delete(c.Param("id")); err != nil {
		if errors.Is(err, presets.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready.
func (h *Handlers) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// ConfigValidator adapts ValidateStartRequest to presets.Validator, so the
// preset store enforces the same distribution/target_rps rule the
// /tests/start handler does.
func ConfigValidator() presets.Validator {
	return func(config map[string]any) error {
		return ValidateStartRequest(FromMap(config))
	}
}
