package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alertflow/alertflow/internal/geo"
	"github.com/alertflow/alertflow/internal/models"
	"github.com/alertflow/alertflow/internal/pipeline"
	"github.com/alertflow/alertflow/internal/repository"
)

const (
	defaultListLimit     = 50
	defaultSeverityLimit = 20
	maxListLimit         = 500

	// defaultNearbyRadiusKm bounds the nearby-alerts query when the client
	// does not supply one.
	defaultNearbyRadiusKm = 50

	// nearbyScanLimit caps how many active alerts a proximity query scans.
	nearbyScanLimit = 500
)

// extractionProcessor is the slice of the pipeline the API needs.
type extractionProcessor interface {
	ProcessExtraction(ctx context.Context, raw string) (*pipeline.Result, error)
}

type Handler struct {
	processor   extractionProcessor
	alerts      repository.AlertRepository
	subscribers repository.SubscriberRepository
}

func NewHandler(processor extractionProcessor, alerts repository.AlertRepository, subscribers repository.SubscriberRepository) *Handler {
	return &Handler{
		processor:   processor,
		alerts:      alerts,
		subscribers: subscribers,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	alerts := r.Group("/api/alerts")
	alerts.POST("/process", h.processAlerts)
	alerts.GET("", h.getAlerts)
	alerts.GET("/severity/:severity", h.getAlertsBySeverity)
	alerts.GET("/geojson", h.getAlertsGeoJSON)

	users := r.Group("/api/users")
	users.POST("/register", h.registerSubscriber)
	users.GET("/nearby", h.getNearbySubscribers)
	users.GET("/:userId", h.getSubscriber)
	users.POST("/:userId/location", h.updateLocation)
	users.PUT("/:userId/preferences", h.updatePreferences)
	users.PUT("/:userId/fcm-token", h.updatePushToken)
	users.GET("/:userId/alerts/nearby", h.getNearbyAlerts)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) processAlerts(c *gin.Context) {
	var req struct {
		Response string `json:"response"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Response) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "extraction response is required",
		})
		return
	}

	result, err := h.processor.ProcessExtraction(c.Request.Context(), req.Response)
	if err != nil {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getAlerts(c *gin.Context) {
	limit := parseLimit(c, defaultListLimit)

	var (
		alerts []models.Alert
		err    error
	)
	if s := c.Query("severity"); s != "" {
		severity, ok := models.ParseSeverity(s)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "unknown severity: " + s,
			})
			return
		}
		alerts, err = h.alerts.ListActiveBySeverity(c.Request.Context(), severity, limit)
	} else {
		alerts, err = h.alerts.ListActive(c.Request.Context(), limit)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(alerts),
		"data":    toAlertViews(alerts),
	})
}

func (h *Handler) getAlertsBySeverity(c *gin.Context) {
	severity, ok := models.ParseSeverity(c.Param("severity"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "unknown severity: " + c.Param("severity"),
		})
		return
	}

	limit := parseLimit(c, defaultSeverityLimit)
	alerts, err := h.alerts.ListActiveBySeverity(c.Request.Context(), severity, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"severity": severity,
		"count":    len(alerts),
		"data":     toAlertViews(alerts),
	})
}

func (h *Handler) getAlertsGeoJSON(c *gin.Context) {
	alerts, err := h.alerts.ListActive(c.Request.Context(), parseLimit(c, defaultListLimit))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, toGeoJSON(alerts))
}

func (h *Handler) registerSubscriber(c *gin.Context) {
	var req struct {
		UserID      string              `json:"userId"`
		FCMToken    string              `json:"fcmToken"`
		Latitude    *float64            `json:"latitude"`
		Longitude   *float64            `json:"longitude"`
		Preferences *models.Preferences `json:"preferences"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "userId is required"})
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "latitude and longitude must be provided together",
		})
		return
	}

	params := repository.UpsertSubscriberParams{
		UserID:      req.UserID,
		PushToken:   req.FCMToken,
		Preferences: req.Preferences,
	}
	if req.Latitude != nil {
		params.Location = &models.Location{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
		}
	}

	sub, err := h.subscribers.UpsertSubscriber(c.Request.Context(), params)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "subscriber registered",
		"data":    toSubscriberView(sub),
	})
}

func (h *Handler) getSubscriber(c *gin.Context) {
	sub, err := h.subscribers.GetSubscriber(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": toSubscriberView(sub)})
}

func (h *Handler) updateLocation(c *gin.Context) {
	var req struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	if err := h.subscribers.UpdateLocation(c.Request.Context(), c.Param("userId"), req.Latitude, req.Longitude); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "location updated"})
}

func (h *Handler) updatePreferences(c *gin.Context) {
	var prefs models.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	if err := h.subscribers.UpdatePreferences(c.Request.Context(), c.Param("userId"), prefs); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "preferences updated"})
}

func (h *Handler) updatePushToken(c *gin.Context) {
	var req struct {
		FCMToken string `json:"fcmToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.FCMToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "fcmToken is required"})
		return
	}

	if err := h.subscribers.UpdatePushToken(c.Request.Context(), c.Param("userId"), req.FCMToken); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "push token updated"})
}

// getNearbyAlerts returns active alerts within radiusKm of a point, nearest
// first. The point comes from lat/lng query params, falling back to the
// subscriber's stored location.
func (h *Handler) getNearbyAlerts(c *gin.Context) {
	radius := defaultNearbyRadiusKm
	if r := c.Query("radius"); r != "" {
		if parsed, err := strconv.Atoi(r); err == nil && parsed > 0 {
			radius = parsed
		}
	}

	lat, lng, ok := queryPoint(c)
	if !ok {
		sub, err := h.subscribers.GetSubscriber(c.Request.Context(), c.Param("userId"))
		if err != nil {
			h.fail(c, err)
			return
		}
		if sub.Location == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "subscriber location not available",
			})
			return
		}
		lat, lng = sub.Location.Latitude, sub.Location.Longitude
	}

	alerts, err := h.alerts.ListActive(c.Request.Context(), nearbyScanLimit)
	if err != nil {
		h.fail(c, err)
		return
	}

	nearby := make([]nearbyAlertView, 0)
	for _, a := range alerts {
		if !a.HasCoordinates() {
			continue
		}
		dist := geo.DistanceKm(lat, lng, *a.Latitude, *a.Longitude)
		if dist <= float64(radius) {
			nearby = append(nearby, nearbyAlertView{alertView: toAlertView(a), DistanceKm: dist})
		}
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].DistanceKm < nearby[j].DistanceKm })

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(nearby),
		"data":    nearby,
	})
}

func (h *Handler) getNearbySubscribers(c *gin.Context) {
	lat, lng, ok := queryPoint(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "lat and lng are required",
		})
		return
	}

	radius := float64(defaultNearbyRadiusKm)
	if r := c.Query("radius"); r != "" {
		if parsed, err := strconv.ParseFloat(r, 64); err == nil && parsed > 0 {
			radius = parsed
		}
	}

	subs, err := h.subscribers.ListInRadius(c.Request.Context(), lat, lng, radius)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(subs),
		"data":    toNearbySubscriberViews(subs),
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": verr.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "subscriber not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}

func parseLimit(c *gin.Context, fallback int) int {
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= maxListLimit {
			return lim
		}
	}
	return fallback
}

func queryPoint(c *gin.Context) (lat, lng float64, ok bool) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		return 0, 0, false
	}
	lat, latErr := strconv.ParseFloat(latStr, 64)
	lng, lngErr := strconv.ParseFloat(lngStr, 64)
	if latErr != nil || lngErr != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
