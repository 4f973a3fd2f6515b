// Package recommend ranks available books for a member or, anonymously, by
// recent activity. It never writes and never fails the caller.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"bookswap/internal/models"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50

	trendingKey = "bookswap:recommend:trending:v1"
)

type Interests struct {
	Genres  map[string]float64
	Authors map[string]float64
}

func (in Interests) empty() bool {
	return len(in.Genres) == 0 && len(in.Authors) == 0
}

type Engagement struct {
	Requests int64
	Views    int64
}

// Source is the read side the scorer needs.
type Source interface {
	Candidates(ctx context.Context, excludeOwner uint, limit int) ([]models.Book, error)
	Interests(ctx context.Context, userID uint, since time.Time) (Interests, error)
	Engagement(ctx context.Context, bookIDs []uint, since time.Time) (map[uint]Engagement, error)
}

type Recommendation struct {
	Book   models.Book `json:"book"`
	Score  float64     `json:"score"`
	Reason string      `json:"reason"`
}

type Options struct {
	CandidateLimit int
	Window         time.Duration
	CacheTTL       time.Duration
}

type Scorer struct {
	src   Source
	cache Cache
	opts  Options
	now   func() time.Time
}

// NewScorer accepts a nil cache.
func NewScorer(src Source, cache Cache, opts Options) *Scorer {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 200
	}
	if opts.Window <= 0 {
		opts.Window = 7 * 24 * time.Hour
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Scorer{src: src, cache: cache, opts: opts, now: time.Now}
}

// ForUser ranks books for userID, or trending books when userID is nil.
// Errors are logged and yield an empty list.
func (s *Scorer) ForUser(ctx context.Context, userID *uint, limit int) []Recommendation {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	var (
		recs []Recommendation
		err  error
	)
	if userID == nil {
		recs, err = s.trending(ctx)
	} else {
		recs, err = s.personal(ctx, *userID)
	}
	if err != nil {
		entry := log.WithError(err)
		if userID != nil {
			entry = entry.WithField("user_id", *userID)
		}
		entry.Warn("recommendations unavailable")
		return []Recommendation{}
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func (s *Scorer) personal(ctx context.Context, userID uint) ([]Recommendation, error) {
	now := s.now()
	since := now.Add(-s.opts.Window)
	in, err := s.src.Interests(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	if in.empty() {
		trending, err := s.trending(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Recommendation, 0, len(trending))
		for _, r := range trending {
			if r.Book.OwnerID != userID {
				out = append(out, r)
			}
		}
		return out, nil
	}
	books, err := s.src.Candidates(ctx, userID, s.opts.CandidateLimit)
	if err != nil {
		return nil, err
	}
	eng, err := s.src.Engagement(ctx, bookIDs(books), since)
	if err != nil {
		return nil, err
	}
	maxGenre, maxAuthor := maxWeight(in.Genres), maxWeight(in.Authors)
	recs := make([]Recommendation, 0, len(books))
	for _, b := range books {
		var genreW, authorW float64
		if maxGenre > 0 {
			genreW = in.Genres[b.Genre] / maxGenre
		}
		if maxAuthor > 0 {
			authorW = in.Authors[b.Author] / maxAuthor
		}
		score := 3*genreW + 2*authorW + activity(eng[b.ID]) + recency(b.CreatedAt, now)
		reason := "New on BookSwap"
		switch {
		case authorW > 0:
			reason = "More from " + b.Author
		case genreW > 0:
			reason = "Because you read " + b.Genre
		case eng[b.ID].Requests > 0:
			reason = "Popular right now"
		}
		recs = append(recs, Recommendation{Book: b, Score: round2(score), Reason: reason})
	}
	rank(recs)
	return recs, nil
}

func (s *Scorer) trending(ctx context.Context) ([]Recommendation, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, trendingKey)
		switch {
		case err == nil:
			var recs []Recommendation
			if jerr := json.Unmarshal(raw, &recs); jerr == nil {
				return recs, nil
			}
		case !errors.Is(err, ErrCacheMiss):
			log.WithError(err).Debug("trending cache read failed")
		}
	}
	now := s.now()
	books, err := s.src.Candidates(ctx, 0, s.opts.CandidateLimit)
	if err != nil {
		return nil, err
	}
	eng, err := s.src.Engagement(ctx, bookIDs(books), now.Add(-s.opts.Window))
	if err != nil {
		return nil, err
	}
	recs := make([]Recommendation, 0, len(books))
	for _, b := range books {
		e := eng[b.ID]
		score := float64(2*e.Requests+e.Views) + recency(b.CreatedAt, now)
		reason := "New on BookSwap"
		if e.Requests > 0 || e.Views > 0 {
			reason = "Trending this week"
		}
		recs = append(recs, Recommendation{Book: b, Score: round2(score), Reason: reason})
	}
	rank(recs)
	if s.cache != nil {
		if raw, err := json.Marshal(recs); err == nil {
			if err := s.cache.Set(ctx, trendingKey, raw, s.opts.CacheTTL); err != nil {
				log.WithError(err).Debug("trending cache write failed")
			}
		}
	}
	return recs, nil
}

func rank(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if !recs[i].Book.CreatedAt.Equal(recs[j].Book.CreatedAt) {
			return recs[i].Book.CreatedAt.After(recs[j].Book.CreatedAt)
		}
		return recs[i].Book.ID > recs[j].Book.ID
	})
}

func activity(e Engagement) float64 {
	return 0.5 * math.Log1p(float64(2*e.Requests+e.Views))
}

// recency decays from 1 for a brand new listing, halving after two weeks.
func recency(created, now time.Time) float64 {
	age := now.Sub(created).Hours() / 24
	if age < 0 {
		age = 0
	}
	return 1 / (1 + age/14)
}

func maxWeight(m map[string]float64) float64 {
	var top float64
	for _, w := range m {
		if w > top {
			top = w
		}
	}
	return top
}

func bookIDs(books []models.Book) []uint {
	ids := make([]uint, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	return ids
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
