package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cloudx-io/gridmatch/marketapi"
)

// SendFrame writes one frame to a tcp stream listener and reads the ack.
func SendFrame(ctx context.Context, address string, frame marketapi.Frame) (marketapi.MeasurementAck, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return marketapi.MeasurementAck{}, fmt.Errorf("dial %s: %w", address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	if _, err := conn.Write(frame); err != nil {
		return marketapi.MeasurementAck{}, fmt.Errorf("write frame: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return marketapi.MeasurementAck{}, fmt.Errorf("close write: %w", err)
		}
	}

	var ack marketapi.MeasurementAck
	if err := json.NewDecoder(conn).Decode(&ack); err != nil {
		return marketapi.MeasurementAck{}, fmt.Errorf("read ack: %w", err)
	}
	return ack, nil
}
