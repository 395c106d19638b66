package server

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/network"
	"github.com/wfunc/landfluss/room"
	"github.com/wfunc/landfluss/session"
)

var ErrRoomNotFound = errors.New("room not found")

// ServeConn runs one peer connection until it closes. roomHint is used when
// the peer's Hello names no room.
func (s *GameServer) ServeConn(conn network.Connection, roomHint string) {
	conn.SetHeartbeat(s.opts.Heartbeat)
	sess := session.NewSession(uuid.NewString(), conn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePeers()

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePeers()
		sess.Close()
	}()

	r, err := s.handshake(sess, roomHint)
	if err != nil {
		frame := errorFrame(err)
		logger.Log.Infow("Handshake rejected", "session", sess.GetID(), "code", frame.Code, "error", err)
		_ = network.SendJSON(conn, network.FrameError, frame)
		return
	}

	defer r.Leave(sess)

	for {
		select {
		case <-s.shutdownChan:
			return
		case <-sess.Done():
			return
		default:
		}
		packet, err := conn.ReadPacket()
		if err != nil {
			return
		}
		sess.Touch()
		s.handlePacket(r, sess, packet)
	}
}

func (s *GameServer) handshake(sess *session.Session, roomHint string) (*room.Room, error) {
	for {
		packet, err := sess.Conn.ReadPacket()
		if err != nil {
			return nil, err
		}
		if packet.MsgID == network.FrameHeartbeat {
			continue
		}
		if packet.MsgID != network.FrameHello {
			return nil, &network.Error{Code: network.CodeNotJoined, Message: "expected hello"}
		}

		var hello network.Hello
		if err := packet.Decode(&hello); err != nil {
			return nil, &network.Error{Code: network.CodeBadRequest, Message: err.Error()}
		}
		if hello.Room == "" {
			hello.Room = roomHint
		}
		return s.enter(sess, hello)
	}
}

func (s *GameServer) enter(sess *session.Session, hello network.Hello) (*room.Room, error) {
	if hello.Token != "" {
		claims, err := s.tokens.Parse(hello.Token)
		if err != nil {
			return nil, err
		}
		r, ok := s.roomManager.GetRoom(claims.RoomID)
		if !ok {
			return nil, ErrRoomNotFound
		}
		if _, err := r.Resume(sess, claims.UserID); err != nil {
			return nil, err
		}
		return r, nil
	}

	if hello.Create {
		r, err := s.roomManager.CreateRoom(room.Options{
			MaxPlayers: s.opts.MaxPlayers,
			Password:   hello.Password,
			Version:    hello.Version,
			Tokens:     s.tokens,
		})
		if err != nil {
			return nil, err
		}
		s.monitor.SetActiveRooms(s.roomManager.Count())
		if _, err := r.Join(sess, hello); err != nil {
			s.roomManager.RemoveRoom(r.ID)
			return nil, err
		}
		return r, nil
	}

	r, ok := s.roomManager.GetRoom(hello.Room)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if _, err := r.Join(sess, hello); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *GameServer) handlePacket(r *room.Room, sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.FrameHeartbeat:
		_ = sess.Send(network.FrameHeartbeat, nil)
	case network.FrameRename:
		var req network.Rename
		if err := packet.Decode(&req); err != nil || req.Name == "" {
			s.sendError(sess, network.CodeBadRequest, "invalid rename")
			return
		}
		if err := r.Rename(sess.UserID, req.Name); err != nil {
			s.sendError(sess, network.CodeNotJoined, err.Error())
		}
	case network.FrameMessage:
		var msg network.Message
		if err := packet.Decode(&msg); err != nil {
			s.sendError(sess, network.CodeBadRequest, err.Error())
			return
		}
		if err := r.Relay(sess.UserID, msg); err != nil {
			logger.Log.Warnw("Message not relayed", "room", r.ID, "user", sess.UserID, "error", err)
			data, _ := json.Marshal(network.Delivered{ID: msg.ID, Error: err.Error()})
			_ = sess.Send(network.FrameDelivered, data)
		}
	case network.FrameAck:
		var ack network.Ack
		if err := packet.Decode(&ack); err != nil {
			s.sendError(sess, network.CodeBadRequest, err.Error())
			return
		}
		r.Ack(sess.UserID, ack.Seq)
	default:
		logger.Log.Infof("Unknown frame type: %d", packet.MsgID)
	}
}

func (s *GameServer) sendError(sess *session.Session, code, message string) {
	data, _ := json.Marshal(network.Error{Code: code, Message: message})
	_ = sess.Send(network.FrameError, data)
}

func errorFrame(err error) *network.Error {
	var frame *network.Error
	if errors.As(err, &frame) {
		return frame
	}
	code := network.CodeBadRequest
	switch {
	case errors.Is(err, ErrRoomNotFound):
		code = network.CodeRoomNotFound
	case errors.Is(err, room.ErrRoomFull):
		code = network.CodeRoomFull
	case errors.Is(err, room.ErrWrongPassword):
		code = network.CodeWrongPassword
	case errors.Is(err, room.ErrVersionMismatch):
		code = network.CodeVersionMismatch
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, room.ErrUnknownPlayer):
		code = network.CodeInvalidToken
	}
	return &network.Error{Code: code, Message: err.Error()}
}
