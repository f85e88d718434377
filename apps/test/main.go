package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cyber-nic/scaffold/libs/artifact"
	sftypes "github.com/cyber-nic/scaffold/libs/types"
	sfutils "github.com/cyber-nic/scaffold/libs/utils"
	"github.com/gorilla/websocket"
	"github.com/logrusorgru/aurora/v4"
	"github.com/rs/zerolog/log"
)

func main() {
	var addr = flag.String("addr", "localhost:8000", "http service address")
	var debug = flag.Bool("debug", false, "enable debug mode")
	var model = flag.String("model", "", "model name")
	var secret = flag.String("secret", "OPENAI_API_KEY", "name of the key file under ~/.secrets")
	flag.Parse()

	sfutils.ConfigLogging(debug)

	apiKey := sfutils.ReadSecret(*secret)
	if apiKey == "" && !strings.HasPrefix(*model, "ollama:") {
		log.Warn().Str("secret", *secret).Msg("no API key found")
	}

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws := getWebSocketConn(*addr)
	defer ws.Close()

	// Create channel for user input
	inputChan := make(chan string)
	go func() {
		defer close(inputChan)
		reader := bufio.NewReader(os.Stdin)
		for {
			text, err := reader.ReadString('\n')
			if err != nil {
				log.Debug().Err(err).Msg("stdin closed")
				return
			}
			select {
			case <-ctx.Done():
				return
			case inputChan <- strings.TrimSpace(text):
			}
		}
	}()

	var transcript []sftypes.Message

	textPrompt()
	for {
		select {
		case <-ctx.Done():
			closeConn(ws)
			fmt.Println()
			return

		case input, ok := <-inputChan:
			if !ok {
				closeConn(ws)
				return
			}
			if input == "" {
				textPrompt()
				continue
			}

			transcript = append(transcript, sftypes.Message{Role: sftypes.RoleUser, Content: input})
			req := sftypes.ChatRequest{Messages: transcript, APIKey: apiKey, Model: *model}

			start := time.Now()
			response, err := streamTurn(ws, req)
			if err != nil {
				log.Err(err).Msg("turn failed")
				// drop the unanswered message so the next turn can retry it
				transcript = transcript[:len(transcript)-1]
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				textPrompt()
				continue
			}
			transcript = append(transcript, sftypes.Message{Role: sftypes.RoleAssistant, Content: response})

			printSummary(response, time.Since(start))
			textPrompt()
		}
	}
}

func textPrompt() {
	fmt.Printf("Enter text: ")
}

func getWebSocketConn(addr string) *websocket.Conn {
	// Setup WebSocket connection
	wsconn := url.URL{Scheme: "ws", Host: addr, Path: "/chat/stream"}
	log.Trace().Msgf("connecting to %s", wsconn.String())

	// Connect
	ws, _, err := websocket.DefaultDialer.Dial(wsconn.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial ws")
	}

	return ws
}

// streamTurn sends req and prints chunks until the server finishes the turn.
func streamTurn(ws *websocket.Conn, req sftypes.ChatRequest) (string, error) {
	if err := ws.WriteJSON(req); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}

	for {
		var frame sftypes.StreamFrame
		if err := ws.ReadJSON(&frame); err != nil {
			return "", err
		}
		switch frame.Type {
		case sftypes.FrameChunk:
			fmt.Print(aurora.Faint(frame.Data))
		case sftypes.FrameDone:
			fmt.Println()
			return frame.Data, nil
		case sftypes.FrameError:
			fmt.Println()
			return "", fmt.Errorf("server: %s", frame.Data)
		default:
			log.Warn().Str("type", frame.Type).Msg("unexpected frame")
		}
	}
}

func printSummary(response string, elapsed time.Duration) {
	title, ok := artifact.Title(response)
	if !ok {
		title = "(no artifact)"
	}
	steps := artifact.Parse(response)
	fmt.Printf("%s %s\n", aurora.Bold(aurora.Green(title)), aurora.Faint(fmt.Sprintf("%d steps in %s", len(steps), elapsed.Round(time.Millisecond))))
	for _, s := range steps {
		switch s.Type {
		case sftypes.StepCreateFile:
			fmt.Printf("  %s %s\n", aurora.Cyan("create"), s.Path)
		case sftypes.StepRunScript:
			fmt.Printf("  %s %s\n", aurora.Magenta("run   "), s.Code)
		}
	}
}

// closeConn sends a close frame and waits briefly for the server to answer.
func closeConn(ws *websocket.Conn) {
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := ws.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		log.Err(err).Msg("write close")
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Info().Msg("Received close frame from server")
				}
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		log.Warn().Msg("Timeout waiting for server to close connection")
	}
}
