package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"bookswap/internal/middleware"
	"bookswap/internal/models"
	"bookswap/internal/recommend"
	"bookswap/internal/repository"
	"bookswap/internal/service"
	"bookswap/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxCoverBytes = 8 << 20

type BookCatalog interface {
	GetByID(ctx context.Context, id uint) (*models.Book, error)
	List(ctx context.Context, f repository.BookFilters) ([]models.Book, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]models.Book, error)
	RecordView(ctx context.Context, bookID uint, viewerID *uint) error
}

type Recommender interface {
	ForUser(ctx context.Context, userID *uint, limit int) []recommend.Recommendation
}

type BookHandler struct {
	listings *service.ListingService
	books    BookCatalog
	scorer   Recommender
	cloud    cloudinary.Client
}

// NewBookHandler accepts a nil cloud client; listings are then created without covers.
func NewBookHandler(listings *service.ListingService, books BookCatalog, scorer Recommender, cloud cloudinary.Client) *BookHandler {
	return &BookHandler{listings: listings, books: books, scorer: scorer, cloud: cloud}
}

type CreateBookRequest struct {
	Title       string `json:"title" form:"title" binding:"required,max=255"`
	Author      string `json:"author" form:"author" binding:"required,max=255"`
	ISBN        string `json:"isbn" form:"isbn" binding:"max=20"`
	Genre       string `json:"genre" form:"genre" binding:"max=64"`
	Condition   string `json:"condition" form:"condition" binding:"required"`
	Description string `json:"description" form:"description" binding:"max=4000"`
	City        string `json:"city" form:"city" binding:"max=128"`
}

// Create lists a book. Multipart requests may carry the cover in the "image" field.
func (h *BookHandler) Create(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.GetUserID(c)
	in := service.ListingInput{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Genre:       req.Genre,
		Condition:   req.Condition,
		Description: req.Description,
		City:        req.City,
	}
	var cover *cloudinary.UploadResult
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		up, ok := h.uploadCover(c, userID)
		if !ok {
			return
		}
		if up != nil {
			cover = up
			in.ImageURL = up.URL
		}
	}
	res, err := h.listings.Create(c.Request.Context(), userID, in)
	if err != nil {
		if cover != nil {
			if derr := h.cloud.Delete(c.Request.Context(), cover.PublicID); derr != nil {
				log.WithError(derr).WithField("public_id", cover.PublicID).Warn("orphaned cover not deleted")
			}
		}
		respondError(c, err, "listing failed")
		return
	}
	c.JSON(http.StatusCreated, res)
}

// uploadCover returns a nil result when the request carries no image.
func (h *BookHandler) uploadCover(c *gin.Context, userID uint) (*cloudinary.UploadResult, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, true
	}
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image uploads are not configured"})
		return nil, false
	}
	if file.Size > maxCoverBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return nil, false
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
		return nil, false
	}
	defer f.Close()
	publicID := "book_" + strconv.FormatUint(uint64(userID), 10) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	up, err := h.cloud.UploadImage(c.Request.Context(), f, publicID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("cover upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
		return nil, false
	}
	return up, true
}

// Get returns a listing and records the view for recommendations.
func (h *BookHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	book, err := h.books.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "book lookup failed")
		return
	}
	viewer := middleware.OptionalUserID(c)
	if viewer == nil || *viewer != book.OwnerID {
		if err := h.books.RecordView(c.Request.Context(), book.ID, viewer); err != nil {
			log.WithError(err).WithField("book_id", book.ID).Warn("book view not recorded")
		}
	}
	c.JSON(http.StatusOK, book)
}

func (h *BookHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	list, err := h.books.List(c.Request.Context(), repository.BookFilters{
		Query:  c.Query("q"),
		Genre:  c.Query("genre"),
		City:   c.Query("city"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err, "list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": list})
}

func (h *BookHandler) Mine(c *gin.Context) {
	list, err := h.books.ListByOwner(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": list})
}

// Recommended never fails; an unavailable scorer yields an empty list.
func (h *BookHandler) Recommended(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	recs := h.scorer.ForUser(c.Request.Context(), middleware.OptionalUserID(c), limit)
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}
