// services/history_service.go
package services

import (
	"context"
	"sort"
	"time"

	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/persistence"
)

// RecordTimeout bounds a single history write.
const RecordTimeout = 5 * time.Second

type HistoryService struct {
	db persistence.Database
}

func NewHistoryService(db persistence.Database) *HistoryService {
	return &HistoryService{db: db}
}

// RecordRound stores a committed round.
func (s *HistoryService) RecordRound(ctx context.Context, rec models.RoundRecord) error {
	return s.db.SaveRound(ctx, rec)
}

// OnRoundCommitted is meant for the engine's RoundCommitted hook. Failures are logged.
func (s *HistoryService) OnRoundCommitted(rec models.RoundRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), RecordTimeout)
	defer cancel()
	if err := s.RecordRound(ctx, rec); err != nil {
		logger.Log.Errorw("Failed to record round", "game", rec.GameID, "round", rec.Round, "error", err)
		return
	}
	logger.Log.Debugw("Round recorded", "game", rec.GameID, "round", rec.Round)
}

// Rounds lists the recorded rounds of a game.
func (s *HistoryService) Rounds(ctx context.Context, gameID string) ([]models.RoundRecord, error) {
	return s.db.ListRounds(ctx, gameID)
}

// Standings sums the round points per player, best first. A player's name is
// the one of its latest round.
func (s *HistoryService) Standings(ctx context.Context, gameID string) ([]models.Standing, error) {
	rounds, err := s.db.ListRounds(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return nil, persistence.ErrRecordNotFound
	}

	byUser := make(map[string]*models.Standing)
	for _, rec := range rounds {
		for _, p := range rec.Players {
			st, ok := byUser[p.UserID]
			if !ok {
				st = &models.Standing{UserID: p.UserID}
				byUser[p.UserID] = st
			}
			st.Name = p.Name
			st.Rounds++
			st.Points += p.RoundScore
		}
	}

	standings := make([]models.Standing, 0, len(byUser))
	for _, st := range byUser {
		standings = append(standings, *st)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Points != standings[j].Points {
			return standings[i].Points > standings[j].Points
		}
		return standings[i].UserID < standings[j].UserID
	})
	return standings, nil
}
