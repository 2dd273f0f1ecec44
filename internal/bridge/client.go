package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
	"go.bug.st/serial"
)

// Client talks to an instrument gateway over a byte stream link.
type Client struct {
	name    string
	open    func(ctx context.Context) (io.ReadWriteCloser, error)
	timeout time.Duration

	mu            sync.Mutex
	link          io.ReadWriteCloser
	transactionID uint16
}

// NewTCPClient returns a client that dials address on Connect.
func NewTCPClient(address string, timeout time.Duration) *Client {
	return &Client{
		name:    address,
		timeout: timeout,
		open: func(ctx context.Context) (io.ReadWriteCloser, error) {
			dialer := net.Dialer{Timeout: timeout}
			return dialer.DialContext(ctx, "tcp", address)
		},
	}
}

// NewSerialClient returns a client that opens a serial port on Connect.
func NewSerialClient(port string, baudRate int, timeout time.Duration) *Client {
	return &Client{
		name:    port,
		timeout: timeout,
		open: func(ctx context.Context) (io.ReadWriteCloser, error) {
			p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
			if err != nil {
				return nil, err
			}
			if err := p.SetReadTimeout(timeout); err != nil {
				p.Close()
				return nil, err
			}
			return serialLink{Port: p}, nil
		},
	}
}

// NewLinkClient wraps an already open link.
func NewLinkClient(name string, link io.ReadWriteCloser, timeout time.Duration) *Client {
	return &Client{
		name:    name,
		timeout: timeout,
		open: func(context.Context) (io.ReadWriteCloser, error) {
			return link, nil
		},
	}
}

// serialLink turns a read timeout, which go.bug.st/serial reports as a zero
// length read, into an error so io.ReadFull does not spin.
type serialLink struct {
	serial.Port
}

var errSerialTimeout = errors.New("serial read timeout")

func (s serialLink) Read(p []byte) (int, error) {
	n, err := s.Port.Read(p)
	if n == 0 && err == nil {
		return 0, errSerialTimeout
	}
	return n, err
}

func (c *Client) Connect(ctx context.Context, deviceNumber int) (Identity, error) {
	if deviceNumber < 1 || deviceNumber > 255 {
		return Identity{}, fmt.Errorf("%w: device number %d out of range", types.ErrConnection, deviceNumber)
	}

	c.mu.Lock()
	if c.link == nil {
		link, err := c.open(ctx)
		if err != nil {
			c.mu.Unlock()
			return Identity{}, fmt.Errorf("%w: %s: %w", types.ErrConnection, c.name, err)
		}
		c.link = link
	}
	c.mu.Unlock()

	resp, err := c.roundTrip(ctx, SetDeviceRequest(uint8(deviceNumber)))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", types.ErrConnection, err)
	}

	bridgeType, serialNumber, err := resp.ParseIdentity()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", types.ErrConnection, err)
	}

	return Identity{
		DeviceNumber: deviceNumber,
		BridgeType:   bridgeType,
		SerialNumber: serialNumber,
	}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link == nil {
		return nil
	}

	err := c.link.Close()
	c.link = nil
	return err
}

func (c *Client) WriteByteParam(ctx context.Context, set, param, value uint8) error {
	if _, err := c.roundTrip(ctx, SetByteParamRequest(set, param, value)); err != nil {
		return fmt.Errorf("%w: byte param %d on set %d: %w", types.ErrTransportWrite, param, set, err)
	}
	return nil
}

func (c *Client) WriteRealParam(ctx context.Context, set, param uint8, value float64) error {
	if _, err := c.roundTrip(ctx, SetRealParamRequest(set, param, value)); err != nil {
		return fmt.Errorf("%w: double param %d on set %d: %w", types.ErrTransportWrite, param, set, err)
	}
	return nil
}

func (c *Client) ScanStart(ctx context.Context) error {
	if _, err := c.roundTrip(ctx, &Frame{Command: CmdScanStart}); err != nil {
		return fmt.Errorf("%w: scan start: %w", types.ErrTransportWrite, err)
	}
	return nil
}

func (c *Client) ScanStop(ctx context.Context) error {
	if _, err := c.roundTrip(ctx, &Frame{Command: CmdScanStop}); err != nil {
		return fmt.Errorf("%w: scan stop: %w", types.ErrTransportWrite, err)
	}
	return nil
}

func (c *Client) ReadTransfer(ctx context.Context) ([]byte, error) {
	resp, err := c.roundTrip(ctx, &Frame{Command: CmdTransfer})
	if err != nil {
		return nil, fmt.Errorf("transfer failed: %w", err)
	}
	if resp.Status == StatusNoData {
		return nil, ErrNoData
	}
	return resp.Data, nil
}

// dropLink closes a link that can no longer be trusted. c.mu must be held.
func (c *Client) dropLink() {
	if c.link != nil {
		c.link.Close()
		c.link = nil
	}
}

// roundTrip sends a request and waits for the matching response.
func (c *Client) roundTrip(ctx context.Context, request *Frame) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link == nil {
		return nil, types.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.transactionID++
	request.TransactionID = c.transactionID

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if conn, ok := c.link.(interface{ SetDeadline(time.Time) error }); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			c.dropLink()
			return nil, fmt.Errorf("set deadline failed: %w", err)
		}
	}

	if _, err := c.link.Write(request.Encode()); err != nil {
		c.dropLink()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	// Any read or framing error leaves the stream position unknown, so the
	// link is dropped and later calls fail with ErrNotConnected.
	response, err := ReadFrame(c.link)
	if err != nil {
		c.dropLink()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	if response.TransactionID != request.TransactionID {
		c.dropLink()
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}
	if response.Command != request.Command {
		return nil, fmt.Errorf("command mismatch: expected 0x%02X, got 0x%02X",
			request.Command, response.Command)
	}
	if response.Status >= StatusDeviceError {
		return nil, &DeviceError{Code: response.Status, Message: string(response.Data)}
	}

	return response, nil
}
