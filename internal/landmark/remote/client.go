// Package remote talks to a landmark sidecar over a websocket. Each frame is
// sent as a JPEG binary message and answered with a JSON list of faces.
package remote

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"face-overlay/internal/landmark"
	"face-overlay/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"gocv.io/x/gocv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrNotConnected = errors.New("landmark service not connected")

// Settings control the transport, not the model.
type Settings struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	RetryInterval    time.Duration
	JPEGQuality      int
}

func DefaultSettings(url string) Settings {
	return Settings{
		URL:              url,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      2 * time.Second,
		WriteTimeout:     time.Second,
		RetryInterval:    3 * time.Second,
		JPEGQuality:      85,
	}
}

type configureMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	Options   landmark.Options `json:"options"`
}

type configureReply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type detectReply struct {
	Faces []landmark.Face `json:"faces"`
	Error string          `json:"error,omitempty"`
}

// Client implements landmark.Detector. Options are sent once per connection;
// changing them means building a new Client.
type Client struct {
	settings  Settings
	options   landmark.Options
	sessionID string
	logger    logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	nextRetry time.Time
	closed    bool
}

// NewClient dials the sidecar and performs the configure handshake.
func NewClient(settings Settings, opts landmark.Options, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.NoOpLogger{}
	}

	c := &Client{
		settings:  settings,
		options:   opts,
		sessionID: uuid.NewString(),
		logger:    log,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewFactory returns a landmark.Factory that builds clients against one sidecar.
func NewFactory(settings Settings, log logger.Logger) landmark.Factory {
	return func(opts landmark.Options) (landmark.Detector, error) {
		return NewClient(settings, opts, log)
	}
}

// connect must be called with mu held or before the client is shared.
func (c *Client) connect() error {
	if c.settings.URL == "" {
		return fmt.Errorf("landmark service URL not configured")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.settings.HandshakeTimeout

	conn, _, err := dialer.Dial(c.settings.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.settings.URL, err)
	}

	hello, err := json.Marshal(configureMessage{
		Type:      "configure",
		SessionID: c.sessionID,
		Options:   c.options,
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("encoding configure message: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		conn.Close()
		return fmt.Errorf("sending configure message: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.settings.HandshakeTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return fmt.Errorf("reading configure reply: %w", err)
	}

	var reply configureReply
	if err := json.Unmarshal(message, &reply); err != nil {
		conn.Close()
		return fmt.Errorf("decoding configure reply: %w", err)
	}
	if reply.Status != "ok" {
		conn.Close()
		return fmt.Errorf("landmark service rejected options: %s", reply.Error)
	}

	c.conn = conn
	c.logger.Info("LandmarkClient", "connected", map[string]interface{}{
		"url":            c.settings.URL,
		"session_id":     c.sessionID,
		"max_num_faces":  c.options.MaxNumFaces,
		"detection_conf": c.options.DetectionConfidence,
		"tracking_conf":  c.options.TrackingConfidence,
	})
	return nil
}

// Detect encodes the frame as JPEG and waits for the sidecar's answer.
func (c *Client) Detect(frame gocv.Mat) ([]landmark.Face, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, c.settings.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	defer buf.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrNotConnected
	}

	if c.conn == nil {
		if time.Now().Before(c.nextRetry) {
			return nil, ErrNotConnected
		}
		if err := c.connect(); err != nil {
			c.nextRetry = time.Now().Add(c.settings.RetryInterval)
			return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, buf.GetBytes()); err != nil {
		c.drop()
		return nil, fmt.Errorf("sending frame: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.drop()
		return nil, fmt.Errorf("reading landmarks: %w", err)
	}

	var reply detectReply
	if err := json.Unmarshal(message, &reply); err != nil {
		return nil, fmt.Errorf("decoding landmarks: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("landmark service: %s", reply.Error)
	}

	if len(reply.Faces) > c.options.MaxNumFaces && c.options.MaxNumFaces > 0 {
		reply.Faces = reply.Faces[:c.options.MaxNumFaces]
	}
	return reply.Faces, nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.logger.Warning("LandmarkClient", "connection dropped", map[string]interface{}{
		"session_id": c.sessionID,
	})
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.settings.WriteTimeout))
	err := c.conn.Close()
	c.conn = nil
	return err
}
