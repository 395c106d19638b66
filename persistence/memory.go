package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/landfluss/models"
)

// Memory keeps the history in process memory.
type Memory struct {
	rounds map[string][]models.RoundRecord
	mutex  sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{rounds: make(map[string][]models.RoundRecord)}
}

func (m *Memory) SaveRound(ctx context.Context, rec models.RoundRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rounds[rec.GameID] = append(m.rounds[rec.GameID], rec)
	return nil
}

func (m *Memory) ListRounds(ctx context.Context, gameID string) ([]models.RoundRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	rounds := append([]models.RoundRecord(nil), m.rounds[gameID]...)
	sort.SliceStable(rounds, func(i, j int) bool { return rounds[i].Round < rounds[j].Round })
	return rounds, nil
}

func (m *Memory) Close() error {
	return nil
}
