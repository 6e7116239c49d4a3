package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"roomforge/internal/protocol"
)

// A scripted client that walks a small place/pick-up/undo sequence against
// a running server, logging every result. Useful as a smoke test and as a
// wire-protocol example.
func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "client name")
		piece = flag.String("piece", "CRATE", "piece id to place")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 16},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	script := [][]protocol.ActionReq{
		{
			{ID: "a1", Kind: protocol.ActPreview, Piece: *piece, Anchor: [3]int{0, 0, 0}},
			{ID: "a2", Kind: protocol.ActConfirm, Piece: *piece, Anchor: [3]int{0, 0, 0}},
		},
		{
			{ID: "b1", Kind: protocol.ActConfirm, Piece: *piece, Anchor: [3]int{0, 1, 0}},
		},
		{
			{ID: "c1", Kind: protocol.ActUndo},
			{ID: "c2", Kind: protocol.ActUndo},
		},
	}
	next := 0

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s grid=%v pieces=%d", w.SessionID, w.GridParams.GridSize, w.Catalog.Count)
			sendNext(conn, w.SessionID, script, &next)

		case protocol.TypeResult:
			var r protocol.ResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			for _, res := range r.Results {
				logger.Printf("RESULT %s kind=%s ok=%v reason=%s err=%s id=%d",
					res.ID, res.Kind, res.OK, res.Reason, res.Error, res.PlacementID)
			}
			if next >= len(script) {
				logger.Printf("script done")
				return
			}
			sendNext(conn, r.SessionID, script, &next)

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			for _, pe := range ev.Events {
				logger.Printf("EVENT %s id=%d piece=%s", pe.Kind, pe.PlacementID, pe.Piece)
			}
		}
	}
}

func sendNext(conn *websocket.Conn, sessionID string, script [][]protocol.ActionReq, next *int) {
	if *next >= len(script) {
		return
	}
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Actions:         script[*next],
	}
	*next++
	if err := conn.WriteJSON(act); err != nil {
		fmt.Fprintln(os.Stderr, "send ACT:", err)
	}
}
