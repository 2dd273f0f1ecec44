package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"
)

// Gateway serves the framed protocol on a link, forwarding every request to
// a backing Transport. It is the host side of Client.
type Gateway struct {
	backend Transport
	logger  *zap.Logger
}

func NewGateway(backend Transport, logger *zap.Logger) *Gateway {
	return &Gateway{backend: backend, logger: logger}
}

// Serve handles requests until the link is closed or ctx is cancelled.
func (g *Gateway) Serve(ctx context.Context, link io.ReadWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		request, err := ReadFrame(link)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		response := g.handle(ctx, request)
		response.TransactionID = request.TransactionID
		response.Command = request.Command

		if _, err := link.Write(response.Encode()); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

func (g *Gateway) handle(ctx context.Context, request *Frame) *Frame {
	var (
		data []byte
		err  error
	)

	switch request.Command {
	case CmdSetDevice:
		if len(request.Data) < 1 {
			return errorFrame(fmt.Errorf("missing device number"))
		}
		var id Identity
		id, err = g.backend.Connect(ctx, int(request.Data[0]))
		if err == nil {
			data = identityData(id.BridgeType, id.SerialNumber)
		}

	case CmdSetByteParam:
		if len(request.Data) < 3 {
			return errorFrame(fmt.Errorf("short byte param request"))
		}
		err = g.backend.WriteByteParam(ctx, request.Data[0], request.Data[1], request.Data[2])

	case CmdSetRealParam:
		if len(request.Data) < 10 {
			return errorFrame(fmt.Errorf("short double param request"))
		}
		value := math.Float64frombits(binary.LittleEndian.Uint64(request.Data[2:10]))
		err = g.backend.WriteRealParam(ctx, request.Data[0], request.Data[1], value)

	case CmdScanStart:
		err = g.backend.ScanStart(ctx)

	case CmdScanStop:
		err = g.backend.ScanStop(ctx)

	case CmdTransfer:
		data, err = g.backend.ReadTransfer(ctx)
		if errors.Is(err, ErrNoData) {
			return &Frame{Status: StatusNoData}
		}

	default:
		err = fmt.Errorf("unknown command 0x%02X", request.Command)
	}

	if err != nil {
		g.logger.Warn("Gateway request failed",
			zap.Uint8("command", request.Command),
			zap.Error(err))
		return errorFrame(err)
	}

	return &Frame{Status: StatusOK, Data: data}
}

// errorFrame reports err with its message cut to what one frame can carry.
func errorFrame(err error) *Frame {
	code, msg := uint8(StatusDeviceError), err.Error()

	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code >= StatusDeviceError {
		code, msg = devErr.Code, devErr.Message
	}
	if len(msg) > maxFrameData {
		msg = msg[:maxFrameData]
	}
	return &Frame{Status: code, Data: []byte(msg)}
}
