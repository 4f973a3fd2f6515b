package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"bookswap/internal/domain"
	"bookswap/internal/ledger"
	"bookswap/internal/models"
	"bookswap/internal/valuation"

	log "github.com/sirupsen/logrus"
)

type ListingBookStore interface {
	Create(ctx context.Context, b *models.Book) error
	CountSimilar(ctx context.Context, title, author string) (int, error)
}

type DemandCounter interface {
	CountPendingDemand(ctx context.Context, title, author string) (int, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type Valuer interface {
	Estimate(ctx context.Context, in valuation.Input) valuation.Estimate
}

type Movements interface {
	ApplyMovement(ctx context.Context, m ledger.Movement) (ledger.Result, error)
}

type ListingNotifier interface {
	NotifyListingValued(ctx context.Context, ownerID uint, book *models.Book, bonus int64) error
}

type ListingInput struct {
	Title       string
	Author      string
	ISBN        string
	Genre       string
	Condition   string
	Description string
	City        string
	ImageURL    string
}

type ListingResult struct {
	Book      *models.Book       `json:"book"`
	Valuation valuation.Estimate `json:"valuation"`
	Bonus     int64              `json:"bonus"`
	Balance   *int64             `json:"balance,omitempty"`
}

type ListingService struct {
	books    ListingBookStore
	demand   DemandCounter
	users    UserLookup
	valuer   Valuer
	ledger   Movements
	notifier ListingNotifier
	bonus    int64
}

func NewListingService(books ListingBookStore, demand DemandCounter, users UserLookup, valuer Valuer, ledger Movements, notifier ListingNotifier, bonus int64) *ListingService {
	return &ListingService{books: books, demand: demand, users: users, valuer: valuer, ledger: ledger, notifier: notifier, bonus: bonus}
}

func (in *ListingInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Condition = strings.ToUpper(strings.TrimSpace(in.Condition))
	switch {
	case in.Title == "":
		return domain.Invalid("title", "required")
	case utf8.RuneCountInString(in.Title) > 255:
		return domain.Invalid("title", "too long")
	case in.Author == "":
		return domain.Invalid("author", "required")
	case utf8.RuneCountInString(in.Author) > 255:
		return domain.Invalid("author", "too long")
	case !domain.IsCondition(in.Condition):
		return domain.Invalid("condition", "must be one of "+strings.Join(domain.Conditions, ", "))
	}
	return nil
}

// Create values and stores a listing, then credits the listing bonus. A failed
// bonus credit is logged and reported as a zero bonus; the listing stays.
func (s *ListingService) Create(ctx context.Context, ownerID uint, in ListingInput) (*ListingResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, ownerID); err != nil {
		return nil, err
	}
	similar, err := s.books.CountSimilar(ctx, in.Title, in.Author)
	if err != nil {
		log.WithError(err).Warn("listing: similar count unavailable")
		similar = 0
	}
	demand, err := s.demand.CountPendingDemand(ctx, in.Title, in.Author)
	if err != nil {
		log.WithError(err).Warn("listing: demand count unavailable")
		demand = 0
	}
	est := s.valuer.Estimate(ctx, valuation.Input{
		Title:           in.Title,
		Author:          in.Author,
		Condition:       in.Condition,
		SimilarListings: similar,
		PendingDemand:   demand,
	})
	book := &models.Book{
		OwnerID:     ownerID,
		Title:       in.Title,
		Author:      in.Author,
		ISBN:        strings.TrimSpace(in.ISBN),
		Genre:       strings.TrimSpace(in.Genre),
		Condition:   in.Condition,
		Description: in.Description,
		City:        in.City,
		ImageURL:    in.ImageURL,
		PointValue:  est.Points,
		Status:      domain.BookStatusAvailable,
	}
	if err := s.books.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	out := &ListingResult{Book: book, Valuation: est}
	if s.bonus > 0 {
		res, err := s.ledger.ApplyMovement(ctx, ledger.Movement{
			UserID:      ownerID,
			Amount:      s.bonus,
			Type:        domain.TxEarnedListing,
			Description: truncate(fmt.Sprintf("Listing bonus: %s", book.Title), 255),
		})
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user_id":   ownerID,
				"book_id":   book.ID,
				"reconcile": true,
			}).Error("listing bonus not credited")
		} else {
			out.Bonus = s.bonus
			out.Balance = &res.Balance
		}
	}
	log.WithFields(log.Fields{
		"user_id":     ownerID,
		"book_id":     book.ID,
		"point_value": book.PointValue,
		"source":      est.Source,
	}).Info("listing created")
	if s.notifier != nil {
		if err := s.notifier.NotifyListingValued(ctx, ownerID, book, out.Bonus); err != nil {
			log.WithError(err).WithField("book_id", book.ID).Warn("listing notification failed")
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
