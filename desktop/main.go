// Command desktop is a minimal start lights client. It renders the lights of
// one session and sends presses to the server over the session websocket the
// moment they happen, so keyboard, mouse and touch input reach the trigger
// with as little delay as possible.
//
// Usage:
//
//	desktop [session_id]
//
// STARTLIGHTS_URL overrides the server address (default http://localhost:8080).
package main

import (
	"encoding/json"
	"fmt"
	"image/color"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

const (
	screenWidth    = 800
	screenHeight   = 480
	defaultBaseURL = "http://localhost:8080"
	lightRadius    = 40
	lightGap       = 24
	lightsY        = 140
)

// ScreenType represents different screens in the app
type ScreenType int

const (
	ScreenSelect ScreenType = iota
	ScreenTrial
)

var (
	colorLit      = color.RGBA{230, 30, 30, 255}
	colorUnlit    = color.RGBA{50, 20, 20, 255}
	colorHousing  = color.RGBA{20, 20, 20, 255}
	colorGo       = color.RGBA{40, 200, 80, 255}
	colorFalse    = color.RGBA{255, 160, 0, 255}
	colorBackdrop = color.RGBA{60, 60, 70, 255}
)

// Game represents the desktop client
type Game struct {
	api           *APIClient
	currentScreen ScreenType

	// select screen
	configs   []ConfigListItem
	cursorPos int
	errorMsg  string

	// trial screen
	mu    sync.Mutex
	board Board
	conn  *websocket.Conn
}

// NewGame creates the client. With a session ID it skips the select screen.
func NewGame(api *APIClient, sessionID string) *Game {
	g := &Game{api: api, currentScreen: ScreenSelect}
	if sessionID != "" {
		if err := g.openSession(sessionID); err != nil {
			g.errorMsg = err.Error()
		}
	}
	if g.currentScreen == ScreenSelect {
		g.loadConfigs()
	}
	return g
}

func (g *Game) loadConfigs() {
	configs, err := g.api.ListConfigs()
	if err != nil {
		g.errorMsg = fmt.Sprintf("Error loading configs: %v", err)
		return
	}
	g.configs = configs
	g.errorMsg = ""
	if g.cursorPos >= len(configs) {
		g.cursorPos = 0
	}
}

// openSession loads the session state and subscribes to its events.
func (g *Game) openSession(sessionID string) error {
	state, err := g.api.State(sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	conn, err := g.api.Dial(sessionID)
	if err != nil {
		return fmt.Errorf("failed to connect websocket: %w", err)
	}

	g.mu.Lock()
	g.board = Board{}
	g.board.ApplySnapshot(state)
	g.conn = conn
	g.mu.Unlock()

	go g.listen(conn)
	g.currentScreen = ScreenTrial
	log.Printf("Opened session %s (%s)", sessionID, state.ConfigName)
	return nil
}

func (g *Game) closeSession() {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	g.currentScreen = ScreenSelect
	g.loadConfigs()
}

// listen applies websocket events to the board until the connection closes.
func (g *Game) listen(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("WebSocket closed: %v", err)
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("WebSocket JSON parse error: %v", err)
			continue
		}

		g.mu.Lock()
		if err := g.board.ApplyEvent(&msg, time.Now()); err != nil {
			log.Printf("Bad %s event: %v", msg.Event, err)
		}
		g.mu.Unlock()
	}
}

// send writes an action to the websocket. Only Update calls it, so there is
// a single writer.
func (g *Game) send(action, channel string) {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return
	}
	msg := map[string]string{"action": action}
	if channel != "" {
		msg["channel"] = channel
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Failed to send %s: %v", action, err)
	}
}

// Update handles input
func (g *Game) Update() error {
	switch g.currentScreen {
	case ScreenSelect:
		g.updateSelectScreen()
	case ScreenTrial:
		g.updateTrialScreen()
	}
	return nil
}

func (g *Game) updateSelectScreen() {
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		g.loadConfigs()
	}
	if len(g.configs) == 0 {
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) {
		g.cursorPos = (g.cursorPos + 1) % len(g.configs)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) {
		g.cursorPos = (g.cursorPos - 1 + len(g.configs)) % len(g.configs)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		cfg := g.configs[g.cursorPos]
		sessionID, err := g.api.CreateSession(cfg.ConfigID)
		if err != nil {
			g.errorMsg = fmt.Sprintf("Error creating session: %v", err)
			return
		}
		if err := g.openSession(sessionID); err != nil {
			g.errorMsg = err.Error()
		}
	}
}

func (g *Game) updateTrialScreen() {
	// Presses go out first, before anything else this frame.
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		g.send("react", "key")
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		g.send("react", "pointer")
	case len(inpututil.AppendJustPressedTouchIDs(nil)) > 0:
		g.send("react", "touch")
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		g.mu.Lock()
		state := g.board.State
		g.mu.Unlock()
		switch state {
		case StateReady, StateComplete:
			g.send("start", "")
		case StateResolved:
			g.send("advance", "")
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.closeSession()
	}
}

// Draw renders the current screen
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(colorBackdrop)
	switch g.currentScreen {
	case ScreenSelect:
		g.drawSelectScreen(screen)
	case ScreenTrial:
		g.drawTrialScreen(screen)
	}
}

func (g *Game) drawSelectScreen(screen *ebiten.Image) {
	y := 20
	ebitenutil.DebugPrintAt(screen, "=== START LIGHTS - SELECT CONFIG ===", 260, y)
	y += 40

	if g.errorMsg != "" {
		ebitenutil.DebugPrintAt(screen, "ERROR: "+g.errorMsg, 20, y)
		y += 30
	}
	if len(g.configs) == 0 {
		ebitenutil.DebugPrintAt(screen, "No configs found. Press F5 to retry.", 20, y)
		return
	}

	for i, cfg := range g.configs {
		marker := "  "
		if i == g.cursorPos {
			marker = "> "
		}
		line := fmt.Sprintf("%s%s - %d attempts, %d lights", marker, cfg.Name, cfg.AttemptsPerSession, cfg.NumberOfStimuli)
		ebitenutil.DebugPrintAt(screen, line, 20, y)
		y += 16
		if cfg.Description != "" {
			ebitenutil.DebugPrintAt(screen, "    "+cfg.Description, 20, y)
			y += 16
		}
		y += 4
	}

	ebitenutil.DebugPrintAt(screen, "UP/DOWN: Select | ENTER: New session | F5: Refresh", 20, screenHeight-20)
}

func (g *Game) drawTrialScreen(screen *ebiten.Image) {
	g.mu.Lock()
	b := g.board
	b.Results = append([]Attempt(nil), g.board.Results...)
	g.mu.Unlock()

	ebitenutil.DebugPrintAt(screen,
		fmt.Sprintf("Session %s | %s | Attempt %d/%d | %s", b.SessionID, b.ConfigName, b.Attempt, b.Attempts, b.State), 10, 10)

	g.drawLights(screen, &b)

	msgColorY := lightsY + lightRadius + 40
	if b.State == StateLive {
		vector.DrawFilledRect(screen, 0, float32(msgColorY-8), screenWidth, 32, colorGo, false)
	} else if len(b.Results) > 0 && b.State == StateResolved && b.Results[len(b.Results)-1].Outcome == "false_start" {
		vector.DrawFilledRect(screen, 0, float32(msgColorY-8), screenWidth, 32, colorFalse, false)
	}
	ebitenutil.DebugPrintAt(screen, b.Message, 20, msgColorY)

	y := msgColorY + 40
	ebitenutil.DebugPrintAt(screen, "Attempts:", 20, y)
	y += 16
	for _, a := range b.Results {
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("  %d. %s", a.Index, a.Label()), 20, y)
		y += 16
	}

	if s := b.Summary; s != nil && b.State == StateComplete {
		x := 420
		sy := msgColorY + 40
		lines := []string{
			"Summary:",
			fmt.Sprintf("  Valid: %d/%d  False starts: %d  Timed out: %d", s.ValidCount, s.AttemptsPerSession, s.FalseStartCount, s.TimedOutCount),
		}
		if s.ValidCount > 0 {
			lines = append(lines,
				fmt.Sprintf("  Average: %.0f ms  Best: %.0f ms", s.SessionAverageMS, s.SessionBestMS),
				fmt.Sprintf("  Std dev: %.0f ms", s.StdDevMS))
		}
		if s.BestReactionMS > 0 {
			lines = append(lines, fmt.Sprintf("  Best ever: %.0f ms", s.BestReactionMS))
		}
		lines = append(lines, "  Rating: "+s.Rating)
		if s.HighVariability {
			lines = append(lines, "  High variability")
		}
		for _, line := range lines {
			ebitenutil.DebugPrintAt(screen, line, x, sy)
			sy += 16
		}
	}

	ebitenutil.DebugPrintAt(screen, "SPACE/CLICK/TAP: React | ENTER: Start/Next | ESC: Menu", 10, screenHeight-20)
}

// drawLights draws the row of lights centered on the screen.
func (g *Game) drawLights(screen *ebiten.Image, b *Board) {
	n := b.Stimuli
	if n <= 0 {
		return
	}
	width := n*2*lightRadius + (n-1)*lightGap
	x0 := (screenWidth - width) / 2

	vector.DrawFilledRect(screen, float32(x0-lightGap), float32(lightsY-lightRadius-lightGap),
		float32(width+2*lightGap), float32(2*lightRadius+2*lightGap), colorHousing, false)

	for i := 0; i < n; i++ {
		cx := float32(x0 + lightRadius + i*(2*lightRadius+lightGap))
		clr := colorUnlit
		if i < b.Lit {
			clr = colorLit
		}
		vector.DrawFilledCircle(screen, cx, lightsY, lightRadius, clr, true)
	}
}

// Layout returns the logical screen size
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func main() {
	baseURL := os.Getenv("STARTLIGHTS_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	sessionID := ""
	if len(os.Args) > 1 {
		sessionID = os.Args[1]
	}

	game := NewGame(NewAPIClient(baseURL), sessionID)

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("Start Lights - Reaction Trial")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
