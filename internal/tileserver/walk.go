package tileserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/exp/slog"

	"roadgrid/internal/geo"
	"roadgrid/internal/navigator"
	"roadgrid/internal/roadgraph"
)

const writeTimeout = 3 * time.Second

// WalkState is sent to the client after every command
type WalkState struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Node   int     `json:"node"`
	Road   int     `json:"road"`
	Vertex int     `json:"vertex"`
	Moved  bool    `json:"moved"`
	Error  string  `json:"error,omitempty"`
}

// walkSession moves one marker over a tile's roads. Direction commands follow
// graph slots; next/prev step through the roads in collection order.
type walkSession struct {
	walker *navigator.Walker
	cursor *navigator.Cursor
}

func newWalkSession(tg *TileGraph) (*walkSession, error) {
	cursor, err := navigator.NewCursor(tg.Roads)
	if err != nil {
		return nil, err
	}
	walker, err := navigator.NewWalker(tg.Graph, cursor.Position())
	if err != nil {
		walker, err = navigator.NewWalkerAtFirst(tg.Graph)
		if err != nil {
			return nil, err
		}
	}
	return &walkSession{walker: walker, cursor: cursor}, nil
}

// apply runs one command and reports whether the marker moved
func (s *walkSession) apply(cmd string) (bool, error) {
	switch cmd {
	case "next", "prev":
		before := s.walker.Position()
		if cmd == "next" {
			s.cursor.Forward()
		} else {
			s.cursor.Backward()
		}
		s.walker.Jump(s.cursor.Position())
		return s.walker.Position() != before, nil
	}

	d, err := roadgraph.ParseDirection(cmd)
	if err != nil {
		return false, err
	}
	return s.walker.Move(d), nil
}

func (s *walkSession) state(moved bool) WalkState {
	pos := s.walker.Position()
	lat, lon := geo.WorldToGeo(pos)
	road, vertex := s.cursor.Index()
	return WalkState{
		Lat:    lat,
		Lon:    lon,
		X:      pos.X,
		Y:      pos.Y,
		Node:   s.walker.Current().ID,
		Road:   road,
		Vertex: vertex,
		Moved:  moved,
	}
}

func writeState(ctx context.Context, conn *websocket.Conn, state WalkState) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, state)
}

// handleWalk upgrades to a websocket session on a tile: /walk/{zoom}/{x}/{y}
func (s *Server) handleWalk(w http.ResponseWriter, r *http.Request) {
	tg, ok := s.tileGraph(w, r, "/walk/")
	if !ok {
		return
	}

	session, err := newWalkSession(tg)
	if err != nil {
		http.Error(w, fmt.Sprintf("Tile %s has no roads", tg.Coord), http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	log := slog.Default().With("tile", tg.Coord.String())
	log.Debug("walk session opened")

	if err := writeState(ctx, conn, session.state(false)); err != nil {
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.Debug("walk session closed", "err", err)
			return
		}

		cmd := strings.ToLower(strings.TrimSpace(string(data)))
		moved, err := session.apply(cmd)
		state := session.state(moved)
		if err != nil {
			state.Error = err.Error()
		}
		if err := writeState(ctx, conn, state); err != nil {
			return
		}
	}
}
