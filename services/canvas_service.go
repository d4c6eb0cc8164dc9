// Session handles networking (sending messages), the gesture machines and
// element store handle the canvas rules, manager destroys the session when it
// is empty.
// register chan - when a user connects via WebSocket they aren't added to the
// Clients map immediately. They are pushed into this channel and the Session's
// Run() loop picks them up one by one and safely adds them to the map.
// unregister - the opposite of register
// broadcast chan -> you put a message into it, then Run() picks it up and
// sends it to every client
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"printcraftAPI/internal/blob"
	"printcraftAPI/internal/compositor"
	"printcraftAPI/internal/design"
	"printcraftAPI/internal/geometry"
	"printcraftAPI/internal/gesture"
	"printcraftAPI/internal/ingest"
	"printcraftAPI/internal/product"
	"printcraftAPI/internal/storage"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Pointer events are tiny but
	// load_design carries a full document.
	maxMessageSize = 256 * 1024
)

// CanvasSession is one live customization of one product. All canvas state
// (elements, background, gestures, blobs) lives here; clients stream pointer
// events in and everyone gets canvas_update frames back.
type CanvasSession struct {
	ID      string
	Manager *CanvasSessionManager

	Product *product.Product
	Overlay *product.Mockup

	Clients    map[*CanvasClient]bool
	Broadcast  chan []byte
	Register   chan *CanvasClient
	Unregister chan *CanvasClient

	// closed when Run exits. Detached producers (the image settle
	// goroutine) select on it instead of sending into a dead session.
	done chan struct{}

	// canvas state, guarded by mu. The store has its own lock but the
	// gesture machines and viewport do not.
	mu         sync.Mutex
	store      *design.Store
	background *design.Background
	blobs      *blob.Registry
	janitor    *sessionJanitor
	viewport   geometry.Viewport

	mouse  *gesture.MouseDrag
	touch  *gesture.Touch
	resize *gesture.CornerResize

	compositor *compositor.Compositor
	ingestor   *ingest.Ingestor
	uploader   storage.Uploader
}

// sessionJanitor cleans up after deleted elements: ephemeral values go back
// to the blob registry, durable values get removed from remote storage.
type sessionJanitor struct {
	blobs    *blob.Registry
	uploader storage.Uploader
}

func (j *sessionJanitor) ReleaseBlob(ref string) bool {
	return j.blobs.Release(ref)
}

// remoteDeleter is the optional uploader capability the janitor needs to
// remove orphaned objects. FirebaseStorage implements it.
type remoteDeleter interface {
	ObjectPathFromURL(publicURL string) string
	Delete(ctx context.Context, objectPath string) bool
}

func (j *sessionJanitor) DeleteRemote(url string) {
	fs, ok := j.uploader.(remoteDeleter)
	if !ok {
		return
	}
	objectPath := fs.ObjectPathFromURL(url)
	if objectPath == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !fs.Delete(ctx, objectPath) {
		log.Printf("Failed to delete remote object %s", objectPath)
	}
}

func NewCanvasSession(id string, prod *product.Product, overlay *product.Mockup, uploader storage.Uploader, proxyRewrite compositor.ProxyRewriter, manager *CanvasSessionManager) *CanvasSession {
	blobs := blob.NewRegistry()
	janitor := &sessionJanitor{blobs: blobs, uploader: uploader}
	store := design.NewStore(janitor)
	background := design.NewBackground()

	loader := compositor.NewLoader(&http.Client{Timeout: 15 * time.Second}, proxyRewrite, blobs)

	return &CanvasSession{
		ID:         id,
		Manager:    manager,
		Product:    prod,
		Overlay:    overlay,
		Clients:    make(map[*CanvasClient]bool),
		Broadcast:  make(chan []byte),
		Register:   make(chan *CanvasClient),
		Unregister: make(chan *CanvasClient),
		done:       make(chan struct{}),
		store:      store,
		janitor:    janitor,
		background: background,
		blobs:      blobs,
		mouse:      gesture.NewMouseDrag(),
		touch:      gesture.NewTouch(),
		resize:     gesture.NewCornerResize(),
		compositor: compositor.New(loader),
		ingestor:   ingest.New(store, blobs, uploader, background, prod.CanvasWidth, prod.CanvasHeight, "designs/"+id),
		uploader:   uploader,
	}
}

func (s *CanvasSession) Run() {
	// Broadcast is deliberately never closed: the settle goroutine may
	// outlive the session and a send on a closed channel panics. It becomes
	// garbage once the last producer returns.
	defer func() {
		close(s.done)
		close(s.Register)
		close(s.Unregister)
	}()

	for {
		select {
		case client := <-s.Register:
			s.Clients[client] = true
			log.Printf("[Canvas %s] Client connected. Count: %d", s.ID, len(s.Clients))
			// late joiners get the current canvas immediately
			select {
			case client.Send <- s.canvasUpdate():
			default:
			}

		case client := <-s.Unregister:
			if _, ok := s.Clients[client]; ok {
				delete(s.Clients, client)
				close(client.Send)

				// If empty, delete session
				if len(s.Clients) == 0 {
					log.Printf("[Canvas %s] Empty, destroying.", s.ID)
					s.Manager.DeleteSession(s.ID)
					return
				}
			}

		case message := <-s.Broadcast:
			for client := range s.Clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(s.Clients, client)
				}
			}
		}
	}
}

// canvasUpdate serializes the whole canvas state for the frontend.
func (s *CanvasSession) canvasUpdate() []byte {
	s.mu.Lock()
	color, blurred := s.background.Snapshot()
	payload := map[string]interface{}{
		"action":             "canvas_update",
		"elements":           s.store.Elements(),
		"selected_id":        s.store.SelectedID(),
		"background_color":   color,
		"background_blurred": blurred,
	}
	s.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		log.Println("Error marshalling canvas update:", err)
		return []byte(`{"action":"canvas_update"}`)
	}
	return data
}

func (s *CanvasSession) broadcastCanvas() {
	select {
	case s.Broadcast <- s.canvasUpdate():
	case <-s.done:
		// session destroyed, nobody is listening
	}
}

// CanvasPayload is everything a client can send over the socket. Only the
// fields for the given action are set.
type CanvasPayload struct {
	Action string `json:"action"`

	// set_viewport
	RenderedWidth  float64 `json:"rendered_width"`
	RenderedHeight float64 `json:"rendered_height"`
	OriginX        float64 `json:"origin_x"`
	OriginY        float64 `json:"origin_y"`

	// pointer events, client (screen) coordinates
	Pointer   string           `json:"pointer"` // "mouse", "touch" or "handle"
	X         float64          `json:"x"`
	Y         float64          `json:"y"`
	Touches   []clientTouch    `json:"touches"`
	ElementID string           `json:"element_id"`

	// element edits
	Text  string        `json:"text"`
	Patch *design.Patch `json:"patch"`

	// background
	Color string `json:"color"`

	// load_design
	Design json.RawMessage `json:"design"`
}

type clientTouch struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// handleMessage routes one client payload into the canvas state. Runs on the
// sender's ReadPump goroutine; s.mu keeps the machines consistent when a
// second client pokes at the same canvas.
func (s *CanvasSession) handleMessage(c *CanvasClient, raw []byte) {
	var p CanvasPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Println("Error reading canvas payload:", err)
		return
	}

	switch p.Action {
	case "set_viewport":
		s.mu.Lock()
		scale := geometry.ScaleFactor(p.RenderedWidth, p.RenderedHeight, s.Product.CanvasWidth, s.Product.CanvasHeight)
		s.viewport = geometry.Viewport{OriginX: p.OriginX, OriginY: p.OriginY, Scale: scale}
		s.mu.Unlock()

	case "pointer_down":
		s.pointerDown(c, p)
	case "pointer_move":
		s.pointerMove(c, p)
	case "pointer_up":
		s.pointerUp(p)
		s.broadcastCanvas()

	case "add_text":
		s.addText(p)
		s.broadcastCanvas()
	case "update_element":
		s.updateElement(p)
		s.broadcastCanvas()
	case "delete_element":
		s.mu.Lock()
		s.store.Delete(p.ElementID)
		s.mu.Unlock()
		s.broadcastCanvas()
	case "select_element":
		s.mu.Lock()
		s.store.Select(p.ElementID)
		s.mu.Unlock()
		s.broadcastCanvas()

	case "set_background_color":
		s.mu.Lock()
		s.background.SetColor(p.Color)
		s.mu.Unlock()
		s.broadcastCanvas()
	case "clear_background":
		s.mu.Lock()
		s.background.Clear()
		s.mu.Unlock()
		s.broadcastCanvas()

	case "load_design":
		if err := s.LoadDesign(p.Design); err != nil {
			c.sendError(err.Error())
			return
		}
		s.broadcastCanvas()

	default:
		log.Printf("[Canvas %s] Unknown action %q", s.ID, p.Action)
	}
}

func (s *CanvasSession) pointerDown(c *CanvasClient, p CanvasPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch p.Pointer {
	case "mouse":
		s.mouse.Begin(s.store, p.ElementID, s.viewport.ToDesignSpace(p.X, p.Y))
	case "touch":
		prevent := s.touch.Down(s.store, p.ElementID, s.designTouches(p.Touches))
		c.sendScrollLock(prevent)
	case "handle":
		s.resize.Begin(s.store, p.ElementID, s.viewport.ToDesignSpace(p.X, p.Y))
	}
}

func (s *CanvasSession) pointerMove(c *CanvasClient, p CanvasPayload) {
	s.mu.Lock()
	moved := false
	switch p.Pointer {
	case "mouse":
		moved = s.mouse.Move(s.store, s.viewport.ToDesignSpace(p.X, p.Y))
	case "touch":
		prevent := s.touch.Move(s.store, s.designTouches(p.Touches))
		c.sendScrollLock(prevent)
		moved = prevent
	case "handle":
		moved = s.resize.Move(s.store, s.viewport.ToDesignSpace(p.X, p.Y))
	}
	s.mu.Unlock()

	if moved {
		s.broadcastCanvas()
	}
}

func (s *CanvasSession) pointerUp(p CanvasPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch p.Pointer {
	case "mouse":
		s.mouse.End()
	case "touch":
		s.touch.Up(s.store, s.designTouches(p.Touches))
	case "handle":
		s.resize.End()
	}
}

func (s *CanvasSession) designTouches(touches []clientTouch) []geometry.Point {
	points := make([]geometry.Point, 0, len(touches))
	for _, t := range touches {
		points = append(points, s.viewport.ToDesignSpace(t.X, t.Y))
	}
	return points
}

func (s *CanvasSession) addText(p CanvasPayload) {
	text := p.Text
	if text == "" {
		text = "Your text"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	el := &design.Element{
		ID:         design.NewElementID(),
		Type:       design.TypeText,
		Value:      text,
		X:          s.Product.CanvasWidth / 2,
		Y:          s.Product.CanvasHeight / 2,
		Width:      120,
		Height:     40,
		FontSize:   24,
		Color:      "#000000",
		FontFamily: "sans-serif",
	}
	s.store.Add(el)
}

func (s *CanvasSession) updateElement(p CanvasPayload) {
	if p.Patch == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Update(p.ElementID, *p.Patch)
}

// IngestImage decodes and places an uploaded image on the canvas. The
// returned channel settles when the durable upload finishes; callers that
// only care about the placement can ignore it.
func (s *CanvasSession) IngestImage(ctx context.Context, data []byte) (string, <-chan error, error) {
	elementID, done, err := s.ingestor.Ingest(ctx, data)
	if err != nil {
		return "", nil, err
	}
	s.broadcastCanvas()

	settled := make(chan error, 1)
	go func() {
		err := <-done
		if err != nil {
			log.Printf("[Canvas %s] Image settle failed: %v", s.ID, err)
		}
		// the element value changed from blob ref to durable URL
		s.broadcastCanvas()
		settled <- err
	}()
	return elementID, settled, nil
}

// Capture renders the current canvas to a PNG data URI. Selection
// decorations never reach the compositor, so nothing needs hiding first.
func (s *CanvasSession) Capture(ctx context.Context) (string, error) {
	return s.compositor.Capture(ctx, s.buildScene())
}

func (s *CanvasSession) buildScene() compositor.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()

	color, blurred := s.background.Snapshot()
	scene := compositor.Scene{
		CanvasWidth:       s.Product.CanvasWidth,
		CanvasHeight:      s.Product.CanvasHeight,
		BackgroundColor:   color,
		BackgroundBlurred: blurred,
		Elements:          s.store.Elements(),
	}
	if s.Overlay != nil {
		scene.OverlayURL = s.Overlay.ImageURL
		scene.OverlayRotation = s.Overlay.Rotation
	}
	return scene
}

// SerializeDesign snapshots the canvas as a versioned design document.
func (s *CanvasSession) SerializeDesign() (json.RawMessage, error) {
	s.mu.Lock()
	elements := s.store.Elements()
	s.mu.Unlock()
	return design.Encode(elements)
}

// LoadDesign replaces the canvas content with a saved document. Image
// values the incoming document still references are kept alive; only
// orphaned values are cleaned up, and remote deletes run off the session
// lock so pointer events never wait on storage.
func (s *CanvasSession) LoadDesign(raw json.RawMessage) error {
	elements, err := design.Decode(raw)
	if err != nil {
		return fmt.Errorf("failed to load design: %w", err)
	}

	incoming := make(map[string]bool, len(elements))
	for _, el := range elements {
		if el.Type == design.TypeImage && el.Value != "" {
			incoming[el.Value] = true
		}
	}

	s.mu.Lock()
	removed := s.store.Clear()
	for i := range elements {
		el := elements[i]
		if el.ID == "" {
			el.ID = design.NewElementID()
		}
		s.store.Add(&el)
	}
	s.store.Select("")
	s.mu.Unlock()

	for _, el := range removed {
		if el.Type != design.TypeImage || el.Value == "" || incoming[el.Value] {
			continue
		}
		if blob.IsEphemeral(el.Value) {
			s.blobs.Release(el.Value)
			continue
		}
		go s.janitor.DeleteRemote(el.Value)
	}
	return nil
}

// Elements returns a snapshot of the canvas, for the order orchestrator.
func (s *CanvasSession) Elements() []design.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Elements()
}

// The Manager holds all active canvas sessions
type CanvasSessionManager struct {
	sessions map[string]*CanvasSession
	mu       sync.RWMutex

	uploader     storage.Uploader
	proxyRewrite compositor.ProxyRewriter
}

func NewCanvasSessionManager(uploader storage.Uploader, proxyRewrite compositor.ProxyRewriter) *CanvasSessionManager {
	return &CanvasSessionManager{
		sessions:     make(map[string]*CanvasSession),
		uploader:     uploader,
		proxyRewrite: proxyRewrite,
	}
}

func (m *CanvasSessionManager) CreateSession(sessionID string, prod *product.Product, overlay *product.Mockup) *CanvasSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s
	}

	s := NewCanvasSession(sessionID, prod, overlay, m.uploader, m.proxyRewrite, m)
	m.sessions[sessionID] = s
	go s.Run()
	return s
}

func (m *CanvasSessionManager) GetSession(sessionID string) (*CanvasSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

func (m *CanvasSessionManager) DeleteSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// CanvasClient is the middleman between one websocket and the session
type CanvasClient struct {
	Session *CanvasSession
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  string
}

func (c *CanvasClient) sendError(message string) {
	data, _ := json.Marshal(map[string]string{"action": "error", "message": message})
	select {
	case c.Send <- data:
	default:
	}
}

// sendScrollLock tells the frontend whether to call preventDefault on the
// current touch sequence.
func (c *CanvasClient) sendScrollLock(prevent bool) {
	data, _ := json.Marshal(map[string]interface{}{"action": "scroll_lock", "prevent": prevent})
	select {
	case c.Send <- data:
	default:
	}
}

func (c *CanvasClient) ReadPump() {
	defer func() {
		c.Session.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Println("Error reading msg", err)
			}
			break
		}
		c.Session.handleMessage(c, message)
	}
}

// WritePump handles messages going TO the frontend
func (c *CanvasClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The session closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// Heartbeat: keep connection alive
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
