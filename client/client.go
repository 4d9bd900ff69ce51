package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chat-gateway/internal"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=ws://localhost:8080/ws"`
	Token     string `env:"CHAT_TOKEN,required=true"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
}

// frame is the {event, data} envelope exchanged with the gateway.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wireUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

type wireMessage struct {
	Content    string    `json:"content"`
	SenderID   int64     `json:"senderId"`
	ReceiverID *int64    `json:"receiverId"`
	CreatedAt  time.Time `json:"createdAt"`
	Sender     wireUser  `json:"sender"`
}

// Terminal styles for the different event kinds.
var (
	okStyle   = color.New(color.FgGreen)
	sysStyle  = color.New(color.FgCyan)
	warnStyle = color.New(color.FgYellow)
	pmStyle   = color.New(color.FgMagenta)
	errStyle  = color.New(color.FgRed)
	dimStyle  = color.New(color.FgGray)
)

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the WebSocket client lifecycle: configuration loading,
// the authenticated dial, and the read/write loops.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := internal.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Dial the gateway with the bearer credential attached.
	header := http.Header{}
	header.Set("X-Auth-Token", config.Token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, header)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	fmt.Println(okStyle.Render(">>> Connected to " + config.ServerURL + " (Ctrl+C to quit)"))
	fmt.Println(dimStyle.Render("    /msg <user-id> <text> sends a private message"))
	fmt.Println(dimStyle.Render("    /history <user-id> fetches a conversation"))

	// 4. Reception loop, detached so stdin stays responsive.
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			render(raw)
		}
	}()

	// 5. Input loop: every stdin line becomes an outbound frame.
	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection lost: %w", err)
		case line, ok := <-input:
			if !ok {
				return exitOK, nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			payload, err := buildFrame(line)
			if err != nil {
				fmt.Println(errStyle.Render("! " + err.Error()))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return exitRuntime, fmt.Errorf("send failed: %w", err)
			}
		}
	}
}

// buildFrame turns one input line into a wire frame. Lines starting
// with a known slash command are routed accordingly, everything else is
// a public message.
func buildFrame(line string) ([]byte, error) {
	switch {
	case strings.HasPrefix(line, "/msg "):
		parts := strings.SplitN(strings.TrimPrefix(line, "/msg "), " ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("usage: /msg <user-id> <text>")
		}
		receiverID, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", parts[0])
		}
		return json.Marshal(map[string]any{
			"event": "send_message",
			"data":  map[string]any{"content": parts[1], "receiverId": receiverID},
		})
	case strings.HasPrefix(line, "/history "):
		userID, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/history ")), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id")
		}
		return json.Marshal(map[string]any{
			"event": "get_private_messages",
			"data":  map[string]any{"userId": userID},
		})
	default:
		return json.Marshal(map[string]any{
			"event": "send_message",
			"data":  map[string]any{"content": line},
		})
	}
}

// render pretty-prints one inbound frame.
func render(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		fmt.Println(errStyle.Render("! unreadable frame: " + err.Error()))
		return
	}

	switch f.Event {
	case "auth_status":
		var data struct {
			User wireUser `json:"user"`
		}
		_ = json.Unmarshal(f.Data, &data)
		fmt.Println(okStyle.Render(fmt.Sprintf("*** Authenticated as %s (id=%d)", data.User.Username, data.User.ID)))
	case "online_users":
		var users []wireUser
		_ = json.Unmarshal(f.Data, &users)
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = fmt.Sprintf("%s(%d)", u.Username, u.ID)
		}
		fmt.Println(sysStyle.Render("*** Online: " + strings.Join(names, ", ")))
	case "previous_messages":
		var messages []wireMessage
		_ = json.Unmarshal(f.Data, &messages)
		for _, m := range messages {
			printMessage(m, false)
		}
	case "new_message":
		var m wireMessage
		_ = json.Unmarshal(f.Data, &m)
		printMessage(m, false)
	case "new_private_message":
		var m wireMessage
		_ = json.Unmarshal(f.Data, &m)
		printMessage(m, true)
	case "private_messages":
		var data struct {
			UserID   int64         `json:"userId"`
			Messages []wireMessage `json:"messages"`
		}
		_ = json.Unmarshal(f.Data, &data)
		fmt.Println(pmStyle.Render(fmt.Sprintf("--- Conversation with user %d ---", data.UserID)))
		for _, m := range data.Messages {
			printMessage(m, true)
		}
	case "user_status_change":
		var data struct {
			UserID   int64 `json:"userId"`
			IsOnline bool  `json:"isOnline"`
		}
		_ = json.Unmarshal(f.Data, &data)
		state := "went offline"
		if data.IsOnline {
			state = "is now online"
		}
		fmt.Println(warnStyle.Render(fmt.Sprintf("*** user %d %s", data.UserID, state)))
	case "error":
		var data struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(f.Data, &data)
		fmt.Println(errStyle.Render("! server: " + data.Message))
	default:
		fmt.Println(dimStyle.Render("? " + f.Event + " " + string(f.Data)))
	}
}

func printMessage(m wireMessage, private bool) {
	stamp := m.CreatedAt.Local().Format(time.TimeOnly)
	if private {
		fmt.Println(pmStyle.Render(fmt.Sprintf("[%s] %s (private): %s", stamp, m.Sender.Username, m.Content)))
		return
	}
	fmt.Printf("[%s] %s: %s\n", stamp, m.Sender.Username, m.Content)
}
