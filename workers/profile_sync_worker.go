package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drakejin/cday2025-minigame-sub000/logger"
	"github.com/drakejin/cday2025-minigame-sub000/models"
	"github.com/drakejin/cday2025-minigame-sub000/services"
	"github.com/drakejin/cday2025-minigame-sub000/utils"
)

// RemoteProfile matches one user of the profile service response.
type RemoteProfile struct {
	ID                string    `json:"id"`
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	AccountStatus     string    `json:"account_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GetProfileChangesResponse is the top-level structure of the profile service response.
type GetProfileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker mirrors usernames and avatars into the players table so
// leaderboards can show them without calling the profile service per request.
type ProfileSyncWorker struct {
	db           *gorm.DB
	log          *logger.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	standings    services.StandingsInvalidator
}

func NewProfileSyncWorker(db *gorm.DB, log *logger.Logger, baseURL, endpointPath, serviceToken string, interval time.Duration, standings services.StandingsInvalidator) *ProfileSyncWorker {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	return &ProfileSyncWorker{
		db:           db,
		log:          log.With("worker", "ProfileSync"),
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.NewHTTPClient(30 * time.Second),
		standings:    standings,
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting profile sync worker", "url", w.baseURL, "interval", w.interval)
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	// first pass backfills everything
	if _, err := w.SyncBatch(ctx, time.Time{}); err != nil {
		w.log.Warn("initial profile sync failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncBatch(ctx, w.lastSyncTime(ctx)); err != nil {
				w.log.Warn("profile sync batch failed", "error", err)
			}
		case <-ctx.Done():
			w.log.Info("profile sync worker stopped")
			return
		}
	}
}

// lastSyncTime is the newest updated_at already mirrored locally.
func (w *ProfileSyncWorker) lastSyncTime(ctx context.Context) time.Time {
	var players []models.Player
	err := w.db.WithContext(ctx).Order("updated_at DESC").Limit(1).Find(&players).Error
	if err != nil || len(players) == 0 {
		return time.Unix(0, 0)
	}
	return players[0].UpdatedAt
}

// SyncBatch fetches profile changes since the given time and upserts them.
// It returns the number of players written.
func (w *ProfileSyncWorker) SyncBatch(ctx context.Context, since time.Time) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid profile service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("profile service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var response GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("decode profile service response: %w", err)
	}
	if len(response.Users) == 0 {
		return 0, nil
	}

	upserted, failed := 0, 0
	for _, remote := range response.Users {
		if remote.ExternalID == "" {
			continue
		}
		local := models.Player{
			ExternalUserID:    remote.ExternalID,
			Username:          remote.Username,
			ProfilePictureURL: remote.ProfilePictureURL,
		}
		local.UpdatedAt = remote.UpdatedAt.UTC()
		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "profile_picture_url", "updated_at"}),
		}).Create(&local).Error; err != nil {
			failed++
			w.log.Warn("failed to upsert player", "external_id", remote.ExternalID, "error", err)
			continue
		}
		upserted++
	}

	if upserted > 0 && w.standings != nil {
		w.standings.Invalidate(ctx)
	}
	w.log.Info("profiles synced", "received", len(response.Users), "upserted", upserted, "failed", failed)
	return upserted, nil
}
