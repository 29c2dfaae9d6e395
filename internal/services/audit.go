package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"recipeapi/internal/models"

	"github.com/mssola/user_agent"
	"gorm.io/gorm"
)

// Client identifies the caller behind an audited action.
type Client struct {
	IP        string
	UserAgent string
}

type AuditService struct {
	db      *gorm.DB
	logger  *slog.Logger
	channel chan models.AuditLog
}

func NewAuditService(db *gorm.DB, logger *slog.Logger) *AuditService {
	return &AuditService{
		db:      db,
		logger:  logger,
		channel: make(chan models.AuditLog, 100),
	}
}

func (s *AuditService) Start(ctx context.Context) {
	s.logger.Info("Audit worker starting")
	for {
		select {
		case entry := <-s.channel:
			s.write(entry)
		case <-ctx.Done():
			s.drain()
			s.logger.Info("Audit worker stopping")
			return
		}
	}
}

func (s *AuditService) drain() {
	for {
		select {
		case entry := <-s.channel:
			s.write(entry)
		default:
			return
		}
	}
}

func (s *AuditService) write(entry models.AuditLog) {
	if err := s.db.Create(&entry).Error; err != nil {
		s.logger.Error("Failed to write audit log", "error", err, "action", entry.Action)
	}
}

// LogAction queues an audit entry. It never blocks; entries are dropped
// when the worker falls behind.
func (s *AuditService) LogAction(userID *uint, action, entityID string, details map[string]any, client Client) {
	merged := make(map[string]any, len(details)+2)
	for k, v := range details {
		merged[k] = v
	}
	if client.UserAgent != "" {
		ua := user_agent.New(client.UserAgent)
		browser, version := ua.Browser()
		merged["browser"] = browser + " " + version
		merged["os"] = ua.OS()
		merged["mobile"] = ua.Mobile()
	}

	detailBytes, err := json.Marshal(merged)
	if err != nil {
		s.logger.Warn("Failed to encode audit details", "error", err, "action", action)
	}

	entry := models.AuditLog{
		UserID:    userID,
		Action:    action,
		EntityID:  entityID,
		Details:   string(detailBytes),
		IPAddress: client.IP,
		Timestamp: time.Now(),
	}

	select {
	case s.channel <- entry:
	default:
		s.logger.Warn("Audit channel full, dropping log", "action", action)
	}
}
