package service

import (
	"context"
	"encoding/json"
	"fmt"

	"bookswap/internal/domain"
	"bookswap/internal/models"
	"bookswap/internal/repository"
	"bookswap/internal/ws"

	log "github.com/sirupsen/logrus"
)

// NotificationService stores an inbox row, then fans out over websocket and FCM.
// Delivery failures past the inbox write are logged and swallowed.
type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	hub      *ws.Hub
	fcm      *FCMService
}

func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, hub *ws.Hub, fcm *FCMService) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, hub: hub, fcm: fcm}
}

func (s *NotificationService) Notify(ctx context.Context, userID uint, notifType, title, body string, data map[string]interface{}) error {
	var dataJSON string
	if data != nil {
		b, _ := json.Marshal(data)
		dataJSON = string(b)
	}
	err := s.repo.Create(ctx, &models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   dataJSON,
	})
	if err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.SendToUser(userID, ws.Event{Type: notifType, Title: title, Body: body, Data: data})
	}
	s.sendPush(ctx, userID, notifType, title, body, data)
	return nil
}

func (s *NotificationService) sendPush(ctx context.Context, userID uint, notifType, title, body string, data map[string]interface{}) {
	if s.fcm == nil || s.userRepo == nil {
		return
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u.FCMToken == "" {
		return
	}
	if err := s.fcm.SendToToken(ctx, u.FCMToken, notifType, title, body, data); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("push notification failed")
	}
}

func (s *NotificationService) NotifyPointsCredited(ctx context.Context, userID uint, points, balance int64) error {
	return s.Notify(ctx, userID, domain.NotifPointsCredited, "Points added",
		fmt.Sprintf("%d points were added to your balance.", points),
		map[string]interface{}{"points": points, "balance": balance})
}

func (s *NotificationService) NotifyListingValued(ctx context.Context, ownerID uint, book *models.Book, bonus int64) error {
	body := fmt.Sprintf("%q is listed at %d points.", book.Title, book.PointValue)
	if bonus > 0 {
		body += fmt.Sprintf(" You earned %d points for listing it.", bonus)
	}
	return s.Notify(ctx, ownerID, domain.NotifListingValued, "Listing published", body,
		map[string]interface{}{"book_id": book.ID, "point_value": book.PointValue, "bonus": bonus})
}

func (s *NotificationService) NotifyExchange(ctx context.Context, userID uint, notifType string, req *models.ExchangeRequest) error {
	title, body := exchangeCopy(notifType, req)
	return s.Notify(ctx, userID, notifType, title, body,
		map[string]interface{}{"request_id": req.ID, "book_id": req.BookID, "points": req.Points})
}

func exchangeCopy(notifType string, req *models.ExchangeRequest) (string, string) {
	book := "a book"
	if req.Book.Title != "" {
		book = fmt.Sprintf("%q", req.Book.Title)
	}
	switch notifType {
	case domain.NotifExchangeRequested:
		return "New exchange request", fmt.Sprintf("Someone wants %s for %d points.", book, req.Points)
	case domain.NotifExchangeAccepted:
		return "Request accepted", fmt.Sprintf("Your request for %s was accepted.", book)
	case domain.NotifExchangeRejected:
		return "Request declined", fmt.Sprintf("Your request for %s was declined; %d points were refunded.", book, req.Points)
	case domain.NotifExchangeCompleted:
		return "Exchange completed", fmt.Sprintf("The exchange of %s is complete; %d points were credited.", book, req.Points)
	case domain.NotifExchangeCancelled:
		return "Request withdrawn", fmt.Sprintf("A request for %s was withdrawn; the book is available again.", book)
	case domain.NotifExchangeExpired:
		return "Request expired", fmt.Sprintf("Your request for %s expired; %d points were refunded.", book, req.Points)
	default:
		return "Exchange update", fmt.Sprintf("Your exchange for %s changed.", book)
	}
}
