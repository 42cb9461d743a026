// Command seabattle-cli is an autoplaying reference client. It signs in,
// queues for a match and plays it to the end with a fixed fleet, confirming
// enemy shots honestly and revealing its placement when combat is over.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"seabattle/internal/client"
	"seabattle/internal/game"
)

const fleet = "1111000000" +
	"0000000000" +
	"1110011100" +
	"0000000000" +
	"1100110011" +
	"0000000000" +
	"1010101000" +
	"0000000000" +
	"0000000000" +
	"0000000000"

type frame struct {
	event string
	data  json.RawMessage
}

// sender is the outbound half of the websocket client.
type sender interface {
	Send(ctx context.Context, event string, payload any) error
}

type bot struct {
	out    sender
	token  string
	userID string
	gameID string

	field  game.Field
	salt   string
	cursor int
}

func main() {
	server := pflag.String("server", "http://localhost:3000", "server base URL")
	login := pflag.String("login", "", "account login")
	name := pflag.String("name", "", "display name (used with --signup)")
	password := pflag.String("password", "", "account password")
	signup := pflag.BoolP("signup", "s", false, "register a new account first")
	timeout := pflag.Duration("timeout", 5*time.Minute, "give up after this long")
	pflag.Parse()

	if *login == "" || *password == "" {
		log.Fatal("--login and --password are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	b := &bot{salt: uuid.NewString()}
	var err error
	b.field, err = game.ParsePlacement(fleet)
	if err != nil {
		log.Fatalf("fleet: %v", err)
	}

	rest := client.NewClient(*server, client.WithTokenProvider(func() string { return b.token }))

	var acct *client.AuthResponse
	if *signup {
		display := *name
		if display == "" {
			display = *login
		}
		acct, err = rest.Signup(ctx, *login, display, *password)
	} else {
		acct, err = rest.Signin(ctx, *login, *password)
	}
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	b.token = acct.Token
	b.userID = acct.UserID
	fmt.Printf("signed in as %s (%s)\n", acct.Login, acct.UserID)

	wsURL := strings.Replace(strings.TrimRight(*server, "/"), "http", "ws", 1) + "/ws"
	ws := client.NewWebSocket(wsURL, 3, time.Second)
	b.out = ws

	frames := make(chan frame, 64)
	ws.OnEvent(func(event string, data json.RawMessage) {
		frames <- frame{event: event, data: data}
	})
	if err := ws.Connect(ctx); err != nil {
		log.Fatalf("ws connect: %v", err)
	}
	defer ws.Close(context.Background())

	// Matchmaking runs beside the event loop; the long poll blocks until
	// the server pairs us.
	paired := make(chan string, 1)
	go func() {
		id, err := rest.JoinGame(ctx)
		if err != nil {
			log.Fatalf("matchmaking: %v", err)
		}
		paired <- id
	}()

	for {
		select {
		case <-ctx.Done():
			log.Fatalf("timed out: %v", ctx.Err())
		case id := <-paired:
			b.gameID = id
			fmt.Printf("paired into game %s\n", id)
			b.send(ctx, "connectToGame", map[string]string{"id": id})
		case f := <-frames:
			if done := b.handle(ctx, f); done {
				return
			}
		}
	}
}

func (b *bot) send(ctx context.Context, event string, payload any) {
	if err := b.out.Send(ctx, event, payload); err != nil {
		log.Fatalf("send %s: %v", event, err)
	}
}

// handle reacts to one server frame; it returns true when the match is over.
func (b *bot) handle(ctx context.Context, f frame) bool {
	switch f.event {
	case game.EvWaitingForAuth:
		b.send(ctx, "userAuth", map[string]string{"token": b.token})
	case game.EvSuccessAuth:
		fmt.Println("authenticated, waiting for an opponent")
	case game.EvSuccessConnectToGame, game.EvEnemyIsConnected:
		fmt.Println(b.text(f.data))
	case game.EvGameStarted:
		fmt.Println(b.text(f.data))
		// The opener gets no waitingForMove prompt; fire speculatively
		// and let the other side's shot be rejected as out of turn.
		b.fire(ctx)
	case game.EvWaitingForReady:
		b.send(ctx, "userReady", map[string]any{"gameId": b.gameID, "ready": true})
	case game.EvWaitingForHash:
		hash := game.CommitmentHash(fleet, b.salt)
		b.send(ctx, "setUserHash", map[string]string{"gameId": b.gameID, "hash": hash})
	case game.EvWaitingForMove:
		var mv game.MovePayload
		_ = json.Unmarshal(f.data, &mv)
		if mv.UserID == b.userID {
			b.fire(ctx)
		}
	case game.EvWaitingForMoveResult:
		var mr game.MoveResultPayload
		_ = json.Unmarshal(f.data, &mr)
		if mr.UserID == b.userID {
			hit := b.field[mr.Y][mr.X] == 1
			b.send(ctx, "userMoveResult", map[string]any{"gameId": b.gameID, "x": mr.X, "y": mr.Y, "hit": hit})
		}
	case game.EvWaitingForPlacement:
		b.send(ctx, "setUserPlacement", map[string]string{"gameId": b.gameID, "placement": fleet})
	case game.EvWaitingForSalt:
		b.send(ctx, "setUserSalt", map[string]string{"gameId": b.gameID, "salt": b.salt})
	case game.EvGameFinished:
		var fin game.FinishedPayload
		_ = json.Unmarshal(f.data, &fin)
		if fin.Winner == "" {
			fmt.Println("game over: no winner, both reveals failed")
		} else if fin.Winner == b.userID {
			fmt.Println("game over: you won")
		} else {
			fmt.Printf("game over: %s won\n", fin.Winner)
		}
		return true
	case game.EvUserMakeMoveError:
		msg := b.text(f.data)
		fmt.Printf("server rejected %s: %s\n", f.event, msg)
		if msg == "The enemy move is expected" && b.cursor > 0 {
			// Not our opening; put the cell back so the real turn
			// starts from it.
			b.cursor--
		}
	default:
		if strings.HasSuffix(f.event, "Error") {
			fmt.Printf("server rejected %s: %s\n", f.event, b.text(f.data))
		}
	}
	return false
}

// fire shoots the next unvisited cell, sweeping the board row by row.
func (b *bot) fire(ctx context.Context) {
	if b.cursor >= game.FieldSize*game.FieldSize {
		return
	}
	x := b.cursor % game.FieldSize
	y := b.cursor / game.FieldSize
	b.cursor++
	b.send(ctx, "userMakeMove", map[string]any{"gameId": b.gameID, "x": x, "y": y})
}

func (b *bot) text(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &body)
	return body.Message
}
