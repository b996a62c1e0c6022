// A terminal peer for poking at a running relay: create or join a room and
// play a knucklebones match from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tavern-games/gamesync/broadcast"
	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/models"
	"github.com/tavern-games/gamesync/protocol"
	"github.com/tavern-games/gamesync/rpc"
	"github.com/tavern-games/gamesync/session"
)

func main() {
	relayURL := flag.String("relay", "ws://localhost:8080/ws", "relay websocket URL")
	natsURL := flag.String("nats", "", "NATS URL; set to use NATS instead of the relay")
	rpcAddr := flag.String("rpc", "localhost:8081", "admin RPC address")
	name := flag.String("name", "Viajante", "display name")
	avatar := flag.String("avatar", "Drake", "avatar seed")
	room := flag.String("room", "", "room code to join; empty creates a room")
	stake := flag.Int("stake", 0, "coins wagered on the match")
	flag.Parse()

	logger.InitDevelopment()

	admin, err := rpc.Dial(*rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Failed to reach the admin RPC at %s: %v", *rpcAddr, err)
	}
	defer admin.Close()

	playerID := uuid.NewString()
	coins, err := admin.EnsureProfile(playerID, *name, *avatar)
	if err != nil {
		logger.Log.Fatalf("Failed to ensure profile: %v", err)
	}
	fmt.Printf("Welcome %s, balance %d coins.\n", *name, coins)

	isHost := *room == ""
	code := strings.ToUpper(*room)
	if isHost {
		code, err = admin.CreateRoom(models.GameKnucklebones, playerID, *stake)
		if err != nil {
			logger.Log.Fatalf("Failed to create room: %v", err)
		}
		fmt.Printf("Room created. Share the code: %s\n", code)
	} else {
		if _, err := admin.LookupRoom(code); err != nil {
			logger.Log.Fatalf("Room %s not found: %v", code, err)
		}
	}

	var channel broadcast.Channel
	if *natsURL != "" {
		conn, err := broadcast.Connect(*natsURL)
		if err != nil {
			logger.Log.Fatalf("Failed to reach NATS: %v", err)
		}
		defer conn.Close()
		channel, err = broadcast.SubscribeNats(conn, code)
		if err != nil {
			logger.Log.Fatalf("Failed to subscribe to room topic: %v", err)
		}
	} else {
		var err error
		channel, err = broadcast.DialRelay(*relayURL, code)
		if err != nil {
			logger.Log.Fatalf("Failed to reach the relay: %v", err)
		}
	}

	s := session.New(session.Config{
		RoomCode:   code,
		Variant:    session.VariantKnucklebones,
		PlayerID:   playerID,
		PlayerName: *name,
		AvatarSeed: *avatar,
		IsHost:     isHost,
		Stake:      *stake,
		Channel:    channel,
		Wallet:     admin,
	})
	defer s.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		s.Close()
		os.Exit(0)
	}()

	fmt.Println("Commands: place <column 0-2>, state, quit")
	reader := bufio.NewReader(os.Stdin)
	for {
		printState(s.State())
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit":
			return
		case "state":
			// The loop reprints it.
		case "place":
			if len(fields) != 2 {
				fmt.Println("Usage: place <column 0-2>")
				continue
			}
			column, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("Usage: place <column 0-2>")
				continue
			}
			if err := s.PlaceDie(column); err != nil {
				fmt.Printf("Rejected: %v\n", err)
			}
		default:
			fmt.Println("Commands: place <column 0-2>, state, quit")
		}
	}
}

func printState(state session.Snapshot) {
	fmt.Printf("[%s] phase=%s turn=%s", state.RoomCode, state.Phase, state.Turn)
	if state.PendingFace != 0 {
		fmt.Printf(" your die=%d", state.PendingFace)
	}
	fmt.Println()
	for _, seat := range []protocol.Seat{protocol.SeatHost, protocol.SeatGuest} {
		grid := state.Grids[seat]
		fmt.Printf("  %-5s ", seat)
		for c := range grid {
			faces := make([]string, 0, len(grid[c]))
			for _, die := range grid[c] {
				faces = append(faces, strconv.Itoa(die.Face))
			}
			fmt.Printf("[%s] ", strings.Join(faces, " "))
		}
		fmt.Println()
	}
	if state.GameOver {
		if state.Draw {
			fmt.Println("Match over: draw.")
		} else {
			fmt.Printf("Match over: %s wins.\n", state.Winner)
		}
	}
}
