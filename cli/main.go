// Package main provides a simple interactive CLI for the tutor API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kidlearn/tutor/internal/auth"
	"github.com/kidlearn/tutor/internal/client"
	"github.com/kidlearn/tutor/internal/domain"
)

// chatter sends one turn and reports its events.
type chatter interface {
	Chat(ctx context.Context, req domain.ChatRequest, handler client.EventHandler) (string, error)
}

// wsClient runs turns over the WebSocket transport.
type wsClient struct {
	conn *websocket.Conn
}

func dialWS(addr, token string) (*wsClient, error) {
	url := "ws" + strings.TrimPrefix(strings.TrimSuffix(addr, "/"), "http") + "/tutor/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &wsClient{conn: conn}, nil
}

func (c *wsClient) Chat(ctx context.Context, req domain.ChatRequest, handler client.EventHandler) (string, error) {
	if err := c.conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}
	var sessionID string
	for {
		var ev domain.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			return sessionID, fmt.Errorf("read event: %w", err)
		}
		if ev.Type == domain.EventTypeSession {
			sessionID = ev.SessionID
		}
		if err := handler(ev); err != nil {
			return sessionID, err
		}
		if ev.Type.Terminal() {
			return sessionID, nil
		}
	}
}

func (c *wsClient) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func printEvent(ev domain.Event) error {
	switch ev.Type {
	case domain.EventTypeContent:
		fmt.Print(ev.Content)
	case domain.EventTypeDone:
		fmt.Println()
	case domain.EventTypeError:
		fmt.Printf("\n[error] %s\n", ev.Error)
	}
	return nil
}

func main() {
	addr := flag.String("addr", "http://localhost:3000", "Tutor API address")
	token := flag.String("token", os.Getenv("TUTOR_TOKEN"), "Bearer token")
	useWS := flag.Bool("ws", false, "Use the WebSocket transport instead of SSE")
	subject := flag.String("subject", "", "Subject id for new sessions (math, reading, science, history, coding)")
	sessionID := flag.String("session", "", "Continue an existing session")
	mint := flag.Bool("mint-token", false, "Print a development token signed with -secret and exit")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "Signing secret for -mint-token")
	userID := flag.String("user", "student-1", "User id for -mint-token")
	flag.Parse()

	log.SetFlags(log.Ltime)

	if *mint {
		if *secret == "" {
			log.Fatal("-mint-token needs -secret or JWT_SECRET")
		}
		tok, err := auth.Issue(*secret, domain.Principal{UserID: *userID, Role: "student"}, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		fmt.Println(tok)
		return
	}
	if *token == "" {
		log.Fatal("no token: pass -token, set TUTOR_TOKEN or use -mint-token")
	}

	api := client.New(*addr, *token)
	var turns chatter = api
	if *useWS {
		fmt.Printf("Connecting to %s over WebSocket...\n", *addr)
		wsc, err := dialWS(*addr, *token)
		if err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		defer wsc.Close()
		turns = wsc
	}

	fmt.Println("\nType a message and press Enter to send.")
	fmt.Println("Commands: /sessions, /history, /new, /quit")

	// Handle Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var input string
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input = strings.TrimSpace(line)
		}

		switch input {
		case "":
			continue
		case "/quit":
			fmt.Println("Bye!")
			return
		case "/new":
			*sessionID = ""
			fmt.Println("Next message starts a new session.")
			continue
		case "/sessions":
			sessions, err := api.ListSessions(ctx)
			if err != nil {
				log.Printf("List sessions failed: %v", err)
				continue
			}
			for _, s := range sessions {
				fmt.Printf("%s  %s  %-8s %s\n", s.ID, s.CreatedAt.Local().Format(time.DateTime), s.SubjectName, s.FirstMessage)
			}
			continue
		case "/history":
			if *sessionID == "" {
				fmt.Println("No session yet.")
				continue
			}
			transcript, err := api.GetSession(ctx, *sessionID)
			if err != nil {
				log.Printf("Get session failed: %v", err)
				continue
			}
			for _, m := range transcript {
				suffix := ""
				if m.Incomplete {
					suffix = " [incomplete]"
				}
				fmt.Printf("[%s]%s %s\n", m.Role, suffix, m.Content)
			}
			continue
		}

		req := domain.ChatRequest{Message: input, SessionID: *sessionID}
		if *sessionID == "" {
			req.SubjectID = *subject
		}
		sid, err := turns.Chat(ctx, req, printEvent)
		if err != nil {
			log.Printf("Chat failed: %v", err)
			continue
		}
		if sid != "" && sid != *sessionID {
			*sessionID = sid
			fmt.Printf("(session %s)\n", sid)
		}
	}
}
