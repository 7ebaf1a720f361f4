package api

import (
	"time"

	"github.com/alertflow/alertflow/internal/models"
	"github.com/alertflow/alertflow/internal/repository"
)

type alertView struct {
	ID               string          `json:"id"`
	DisasterType     string          `json:"disasterType"`
	Latitude         *float64        `json:"latitude"`
	Longitude        *float64        `json:"longitude"`
	Location         string          `json:"location"`
	Date             string          `json:"date"`
	Time             string          `json:"time"`
	Magnitude        string          `json:"magnitude"`
	Severity         models.Severity `json:"severity"`
	CreatedAt        time.Time       `json:"createdAt"`
	ExpiresAt        time.Time       `json:"expiresAt"`
	IsActive         bool            `json:"isActive"`
	Source           string          `json:"source"`
	NotificationSent bool            `json:"notificationSent"`
}

func toAlertView(a models.Alert) alertView {
	return alertView{
		ID:               a.ID,
		DisasterType:     a.DisasterType,
		Latitude:         a.Latitude,
		Longitude:        a.Longitude,
		Location:         a.Location,
		Date:             a.Date,
		Time:             a.Time,
		Magnitude:        a.Magnitude,
		Severity:         a.Severity,
		CreatedAt:        a.CreatedAt,
		ExpiresAt:        a.ExpiresAt,
		IsActive:         a.IsActive,
		Source:           a.Source,
		NotificationSent: a.NotificationSent,
	}
}

func toAlertViews(alerts []models.Alert) []alertView {
	views := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, toAlertView(a))
	}
	return views
}

type nearbyAlertView struct {
	alertView
	DistanceKm float64 `json:"distanceKm"`
}

type subscriberView struct {
	UserID       string             `json:"userId"`
	PushToken    string             `json:"fcmToken,omitempty"`
	Location     *models.Location   `json:"location,omitempty"`
	Preferences  models.Preferences `json:"preferences"`
	RegisteredAt time.Time          `json:"registeredAt"`
	LastActiveAt time.Time          `json:"lastActiveAt"`
}

func toSubscriberView(s *models.Subscriber) subscriberView {
	return subscriberView{
		UserID:       s.UserID,
		PushToken:    s.PushToken,
		Location:     s.Location,
		Preferences:  s.Preferences,
		RegisteredAt: s.RegisteredAt,
		LastActiveAt: s.LastActiveAt,
	}
}

type nearbySubscriberView struct {
	UserID     string           `json:"userId"`
	Location   *models.Location `json:"location,omitempty"`
	DistanceKm float64          `json:"distanceKm"`
}

func toNearbySubscriberViews(subs []repository.NearbySubscriber) []nearbySubscriberView {
	views := make([]nearbySubscriberView, 0, len(subs))
	for _, s := range subs {
		views = append(views, nearbySubscriberView{
			UserID:     s.UserID,
			Location:   s.Location,
			DistanceKm: s.DistanceKm,
		})
	}
	return views
}
