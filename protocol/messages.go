// Package protocol is the message catalogue of the game and the only path
// through which a turn engine's state may change.
package protocol

import (
	"fmt"

	"github.com/wfunc/landfluss/models"
)

// Version is announced by peers on join. All peers of a room run the same version.
const Version = "1"

// MsgType identifies a protocol message.
type MsgType uint16

const (
	MsgTypeWelcome       MsgType = 101
	MsgTypeChangeConfig  MsgType = 102
	MsgTypeStartGame     MsgType = 103
	MsgTypeNextRound     MsgType = 104
	MsgTypeEndRound      MsgType = 105
	MsgTypeSolution      MsgType = 106
	MsgTypeTouchCategory MsgType = 107
	MsgTypeSkip          MsgType = 108
	MsgTypeScoreWord     MsgType = 109
	MsgTypeAcceptScoring MsgType = 110
	MsgTypeGameState     MsgType = 111
	MsgTypeRequestState  MsgType = 112
)

// MsgTypes lists the catalogue in id order.
var MsgTypes = []MsgType{
	MsgTypeWelcome,
	MsgTypeChangeConfig,
	MsgTypeStartGame,
	MsgTypeNextRound,
	MsgTypeEndRound,
	MsgTypeSolution,
	MsgTypeTouchCategory,
	MsgTypeSkip,
	MsgTypeScoreWord,
	MsgTypeAcceptScoring,
	MsgTypeGameState,
	MsgTypeRequestState,
}

var msgTypeNames = map[MsgType]string{
	MsgTypeWelcome:       "welcome",
	MsgTypeChangeConfig:  "change config",
	MsgTypeStartGame:     "start game",
	MsgTypeNextRound:     "next round",
	MsgTypeEndRound:      "end round",
	MsgTypeSolution:      "solution",
	MsgTypeTouchCategory: "touch category",
	MsgTypeSkip:          "skip",
	MsgTypeScoreWord:     "score word",
	MsgTypeAcceptScoring: "accept scoring",
	MsgTypeGameState:     "game state",
	MsgTypeRequestState:  "request state",
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("msg(%d)", uint16(t))
}

// Known reports whether t is part of the catalogue.
func (t MsgType) Known() bool {
	_, ok := msgTypeNames[t]
	return ok
}

// Welcome is sent by the host to a peer joining the lobby.
// Seq is the last sequence number the host applied before sending it.
type Welcome struct {
	Seq    uint64            `json:"seq"`
	Config models.GameConfig `json:"config"`
}

type ChangeConfig struct {
	Config models.GameConfig `json:"config"`
}

type StartGame struct {
	Config models.GameConfig `json:"config"`
}

type NextRound struct{}

type EndRound struct{}

type Solution struct {
	Solution []models.SolutionEntry `json:"solution"`
}

type TouchCategory struct {
	Category string `json:"category"`
}

type Skip struct {
	Skipped bool `json:"skipped"`
}

type ScoreWord struct {
	UserID    string           `json:"userId"`
	Category  string           `json:"category"`
	ScoreType models.ScoreType `json:"scoreType"`
}

type AcceptScoring struct{}

// GameState is the snapshot a host sends to one (re)joining peer. Guests
// send it to a resuming host in answer to RequestState.
type GameState struct {
	models.Snapshot
}

// RequestState is sent by a host that lost its connection. Every synced
// peer answers the sender with its GameState.
type RequestState struct{}
