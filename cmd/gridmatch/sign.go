package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cloudx-io/gridmatch/feed"
	"github.com/cloudx-io/gridmatch/marketapi"
)

var genKeyCmd = &cli.Command{
	Name:  "gen-key",
	Usage: "Generate a P-256 key pair for signing measurements",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "private",
			Required: true,
			Usage:    "output path of the private key PEM",
		},
		&cli.StringFlag{
			Name:     "public",
			Required: true,
			Usage:    "output path of the public key PEM",
		},
	},
	Action: func(ctx *cli.Context) error {
		key, err := marketapi.GenerateKey()
		if err != nil {
			return err
		}
		priv, err := marketapi.PrivateKeyPEM(key)
		if err != nil {
			return err
		}
		pub, err := marketapi.PublicKeyPEM(&key.PublicKey)
		if err != nil {
			return err
		}
		if err := os.WriteFile(ctx.String("private"), []byte(priv), 0o600); err != nil {
			return fmt.Errorf("write private key: %w", err)
		}
		if err := os.WriteFile(ctx.String("public"), []byte(pub), 0o644); err != nil {
			return fmt.Errorf("write public key: %w", err)
		}
		return nil
	},
}

var signMeasurementCmd = &cli.Command{
	Name:  "sign-measurement",
	Usage: "Sign a flow measurement and print it, or send it to a stream listener",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "key",
			Required: true,
			Usage:    "private key PEM used to sign",
		},
		&cli.StringFlag{
			Name:     "node",
			Required: true,
			Usage:    "peak shaving node id",
		},
		&cli.Float64Flag{
			Name:     "flow",
			Required: true,
			Usage:    "measured flow",
		},
		&cli.StringFlag{
			Name:  "send",
			Usage: "tcp address of a stream listener; prints base64 when empty",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 10 * time.Second,
			Usage: "send timeout",
		},
	},
	Action: func(ctx *cli.Context) error {
		raw, err := os.ReadFile(ctx.String("key"))
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key, err := marketapi.ParsePrivateKeyPEM(raw)
		if err != nil {
			return err
		}

		m := marketapi.MeasurementMessage{
			NodeID:    ctx.String("node"),
			Flow:      ctx.Float64("flow"),
			Timestamp: time.Now().UnixMilli(),
		}
		if err := m.Validate(); err != nil {
			return err
		}
		frame, err := marketapi.SignMeasurement(m, key)
		if err != nil {
			return err
		}

		address := ctx.String("send")
		if address == "" {
			fmt.Println(frame.EncodeBase64())
			return nil
		}

		sendCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration("timeout"))
		defer cancel()
		ack, err := feed.SendFrame(sendCtx, address, frame)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(ack, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		if !ack.Success {
			return fmt.Errorf("measurement rejected: %s", ack.Message)
		}
		return nil
	},
}
