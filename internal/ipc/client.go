package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// Client connects to the agent's control socket. One background reader
// demuxes the stream: responses route to their pending Call, events go
// to the Events channel.
type Client struct {
	conn    net.Conn
	writeMu sync.Mutex
	seq     atomic.Int64

	mu    sync.Mutex
	calls map[string]chan Response

	eventCh   chan Event
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the agent's control socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}

	c := &Client{
		conn:    conn,
		calls:   make(map[string]chan Response),
		eventCh: make(chan Event, 64),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call sends a request and waits for the matching response.
func (c *Client) Call(method string, params any) (*Response, error) {
	id := strconv.FormatInt(c.seq.Add(1), 10)

	ch := make(chan Response, 1)
	c.mu.Lock()
	c.calls[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.calls, id)
		c.mu.Unlock()
	}()

	req := Request{ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		req.Params = data
	}
	if err := c.send(req); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return &resp, nil
	case <-c.done:
		return nil, fmt.Errorf("connection closed")
	}
}

// CallResult sends a request and unmarshals the result payload into v.
// An error response from the agent comes back as a Go error. Pass a
// nil v to discard the payload.
func (c *Client) CallResult(method string, params, v any) error {
	resp, err := c.Call(method, params)
	if err != nil {
		return err
	}
	if resp.Type == "error" {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(resp.Data, &e); err != nil || e.Error == "" {
			return fmt.Errorf("%s failed", method)
		}
		return fmt.Errorf("%s", e.Error)
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(resp.Data, v)
}

// Subscribe asks the agent to stream events over this connection. The
// agent dedicates the connection to the stream afterwards, so open a
// separate client for request/response calls.
func (c *Client) Subscribe(events ...string) error {
	req := Request{
		ID:     strconv.FormatInt(c.seq.Add(1), 10),
		Method: "subscribe",
	}
	if len(events) > 0 {
		data, err := json.Marshal(SubscribeParams{Events: events})
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		req.Params = data
	}
	return c.send(req)
}

// Events returns the channel carrying subscribed events. It is closed
// when the connection drops.
func (c *Client) Events() <-chan Event {
	return c.eventCh
}

// Close closes the connection. Pending Calls fail.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *Client) send(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

func (c *Client) readLoop() {
	defer func() {
		c.closeOnce.Do(func() { close(c.done) })
		close(c.eventCh)
	}()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		c.dispatch(resp)
	}
}

// dispatch routes one decoded line: events go to the event channel,
// everything else to the Call waiting on the ID. Events drop when the
// channel is full rather than stall the reader.
func (c *Client) dispatch(resp Response) {
	if resp.Type == "event" {
		var evt Event
		if err := json.Unmarshal(resp.Data, &evt); err != nil {
			return
		}
		select {
		case c.eventCh <- evt:
		default:
		}
		return
	}

	if resp.ID == "" {
		return
	}
	c.mu.Lock()
	ch, ok := c.calls[resp.ID]
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}
