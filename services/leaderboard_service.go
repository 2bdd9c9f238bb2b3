package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 100

	PlaceholderPlayerName    = "Unknown player"
	PlaceholderCharacterName = "Unknown character"

	SourceSnapshot = "snapshot"
	SourceLive     = "live"
)

// StandingsCache stores the fully ranked live standings.
type StandingsCache interface {
	Get(ctx context.Context) ([]models.LeaderboardEntry, bool, error)
	Set(ctx context.Context, entries []models.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

// SnapshotArchiver stores a frozen leaderboard outside the database.
type SnapshotArchiver interface {
	ArchiveLeaderboard(ctx context.Context, roundNumber int, payload []byte) (string, error)
}

type LeaderboardService struct {
	Deps
	Cache   StandingsCache
	Archive SnapshotArchiver
}

func NewLeaderboardService(d Deps, cache StandingsCache, archive SnapshotArchiver) *LeaderboardService {
	return &LeaderboardService{Deps: d.withDefaults(), Cache: cache, Archive: archive}
}

type LeaderboardPage struct {
	Entries     []models.LeaderboardEntry `json:"entries"`
	Total       int                       `json:"total"`
	Limit       int                       `json:"limit"`
	Offset      int                       `json:"offset"`
	Source      string                    `json:"source"`
	RoundNumber int                       `json:"round_number,omitempty"`
}

// Rank serves the snapshot of the latest completed round when one exists,
// otherwise the live aggregate of fresh trial results.
func (s *LeaderboardService) Rank(ctx context.Context, limit, offset int) (page *LeaderboardPage, err error) {
	ctx, span := startSpan(ctx, "LeaderboardService.Rank", attribute.Int("limit", limit), attribute.Int("offset", offset))
	defer func() { endSpan(span, err) }()

	if offset < 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "offset must not be negative")
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	latest, err := latestCompletedRound(s.DB.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if latest != nil {
		page, err := s.snapshotPage(ctx, latest.RoundNumber, limit, offset)
		if err != nil || page != nil {
			return page, err
		}
	}

	entries, err := s.liveStandings(ctx)
	if err != nil {
		return nil, err
	}
	return &LeaderboardPage{
		Entries: paginate(entries, limit, offset),
		Total:   len(entries),
		Limit:   limit,
		Offset:  offset,
		Source:  SourceLive,
	}, nil
}

// snapshotPage returns nil when the round has no snapshot rows.
func (s *LeaderboardService) snapshotPage(ctx context.Context, roundNumber, limit, offset int) (*LeaderboardPage, error) {
	db := s.DB.WithContext(ctx)
	var total int64
	if err := db.Model(&models.LeaderboardSnapshot{}).Where("round_number = ?", roundNumber).Count(&total).Error; err != nil {
		return nil, apperr.Database(err)
	}
	if total == 0 {
		return nil, nil
	}

	var rows []models.LeaderboardSnapshot
	if err := db.Where("round_number = ?", roundNumber).
		Order("total_score DESC").
		Order("character_created_at ASC").
		Order("character_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, apperr.Database(err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.LeaderboardEntry{
			Rank:          r.Rank,
			CharacterID:   r.CharacterID,
			CharacterName: orPlaceholder(r.CharacterName, PlaceholderCharacterName),
			PlayerName:    orPlaceholder(r.PlayerName, PlaceholderPlayerName),
			CurrentPrompt: r.CurrentPrompt,
			TotalScore:    r.TotalScore,
		})
	}
	return &LeaderboardPage{
		Entries:     entries,
		Total:       int(total),
		Limit:       limit,
		Offset:      offset,
		Source:      SourceSnapshot,
		RoundNumber: roundNumber,
	}, nil
}

func (s *LeaderboardService) liveStandings(ctx context.Context) ([]models.LeaderboardEntry, error) {
	if s.Cache != nil {
		cached, ok, err := s.Cache.Get(ctx)
		if err != nil {
			s.Log.Warn("leaderboard cache read failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	entries, err := s.computeStandings(s.DB.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, entries); err != nil {
			s.Log.Warn("leaderboard cache write failed", "error", err)
		}
	}
	return entries, nil
}

type characterTotal struct {
	CharacterID string
	Total       int
}

// computeStandings aggregates fresh results of open trials per character and
// ranks them densely. Active characters without results appear with zero.
func (s *LeaderboardService) computeStandings(db *gorm.DB) ([]models.LeaderboardEntry, error) {
	var totals []characterTotal
	if err := db.Raw(`SELECT tr.character_id AS character_id, SUM(tr.weighted_total) AS total
		FROM trial_results tr
		JOIN trials t ON t.id = tr.trial_id
		WHERE tr.needs_revalidation = ? AND t.status <> ?
		GROUP BY tr.character_id`, false, models.RoundCancelled).
		Scan(&totals).Error; err != nil {
		return nil, apperr.Database(err)
	}

	totalByCharacter := make(map[string]int, len(totals))
	ids := make([]string, 0, len(totals))
	for _, t := range totals {
		totalByCharacter[t.CharacterID] = t.Total
		ids = append(ids, t.CharacterID)
	}

	var characters []models.Character
	q := db.Where("is_active = ?", true)
	if len(ids) > 0 {
		q = db.Where("is_active = ? OR id IN ?", true, ids)
	}
	if err := q.Find(&characters).Error; err != nil {
		return nil, apperr.Database(err)
	}

	known := make(map[string]bool, len(characters))
	userIDs := make([]string, 0, len(characters))
	for _, c := range characters {
		known[c.ID] = true
		userIDs = append(userIDs, c.UserID)
	}

	players := map[string]models.Player{}
	if len(userIDs) > 0 {
		var rows []models.Player
		if err := db.Where("external_user_id IN ?", userIDs).Find(&rows).Error; err != nil {
			return nil, apperr.Database(err)
		}
		for _, p := range rows {
			players[p.ExternalUserID] = p
		}
	}

	entries := make([]models.LeaderboardEntry, 0, len(characters)+len(ids))
	for _, c := range characters {
		// deactivated characters are loaded only so their results do not surface as placeholders
		if !c.IsActive {
			continue
		}
		e := models.LeaderboardEntry{
			CharacterID:   c.ID,
			CharacterName: orPlaceholder(c.Name, PlaceholderCharacterName),
			PlayerName:    PlaceholderPlayerName,
			CurrentPrompt: c.CurrentPrompt,
			TotalScore:    totalByCharacter[c.ID],
			CreatedAt:     c.CreatedAt,
		}
		if p, ok := players[c.UserID]; ok {
			e.PlayerName = orPlaceholder(p.Username, PlaceholderPlayerName)
			if p.ProfilePictureURL != nil {
				e.AvatarURL = *p.ProfilePictureURL
			}
		}
		entries = append(entries, e)
	}
	for _, id := range ids {
		if known[id] {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			CharacterID:   id,
			CharacterName: PlaceholderCharacterName,
			PlayerName:    PlaceholderPlayerName,
			TotalScore:    totalByCharacter[id],
			CreatedAt:     maxTime,
		})
	}

	rankEntries(entries)
	return entries, nil
}

var maxTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// rankEntries sorts by total descending, then earliest creation, then id,
// and assigns dense ranks starting at 1.
func rankEntries(entries []models.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CharacterID < b.CharacterID
	})
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].TotalScore != entries[i-1].TotalScore {
			rank++
		}
		entries[i].Rank = rank
	}
}

func paginate(entries []models.LeaderboardEntry, limit, offset int) []models.LeaderboardEntry {
	if offset >= len(entries) {
		return []models.LeaderboardEntry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}

func orPlaceholder(v, placeholder string) string {
	if v == "" {
		return placeholder
	}
	return v
}

// Freeze writes the snapshot of round inside the caller's transaction.
func (s *LeaderboardService) Freeze(tx *gorm.DB, round *models.Round) ([]models.LeaderboardSnapshot, error) {
	entries, err := s.computeStandings(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Where("round_number = ?", round.RoundNumber).Delete(&models.LeaderboardSnapshot{}).Error; err != nil {
		return nil, apperr.Database(err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	frozenAt := nowFrom(s.Clock)
	rows := make([]models.LeaderboardSnapshot, 0, len(entries))
	for _, e := range entries {
		createdAt := e.CreatedAt
		if createdAt.Equal(maxTime) {
			createdAt = frozenAt
		}
		rows = append(rows, models.LeaderboardSnapshot{
			RoundID:            round.ID,
			RoundNumber:        round.RoundNumber,
			CharacterID:        e.CharacterID,
			Rank:               e.Rank,
			TotalScore:         e.TotalScore,
			CharacterName:      e.CharacterName,
			PlayerName:         e.PlayerName,
			CurrentPrompt:      e.CurrentPrompt,
			CharacterCreatedAt: createdAt,
			FrozenAt:           frozenAt,
		})
	}
	if err := tx.CreateInBatches(&rows, 200).Error; err != nil {
		return nil, apperr.Database(err)
	}
	return rows, nil
}

// AfterFreeze runs once the freezing transaction committed.
func (s *LeaderboardService) AfterFreeze(ctx context.Context, round *models.Round, rows []models.LeaderboardSnapshot) {
	s.Invalidate(ctx)
	if s.Archive == nil || len(rows) == 0 {
		return
	}
	payload, err := json.Marshal(struct {
		RoundNumber int                          `json:"round_number"`
		FrozenAt    time.Time                    `json:"frozen_at"`
		Entries     []models.LeaderboardSnapshot `json:"entries"`
	}{round.RoundNumber, rows[0].FrozenAt, rows})
	if err != nil {
		s.Log.Warn("leaderboard archive encode failed", "round_number", round.RoundNumber, "error", err)
		return
	}
	go func() {
		archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		url, err := s.Archive.ArchiveLeaderboard(archiveCtx, round.RoundNumber, payload)
		if err != nil {
			s.Log.Warn("leaderboard archive upload failed", "round_number", round.RoundNumber, "error", err)
			return
		}
		s.Log.Info("leaderboard archived", "round_number", round.RoundNumber, "url", url)
	}()
}

// Invalidate implements StandingsInvalidator.
func (s *LeaderboardService) Invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		s.Log.Warn("leaderboard cache invalidation failed", "error", err)
	}
}
