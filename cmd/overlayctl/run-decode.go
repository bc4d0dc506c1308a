package main

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/urfave/cli"

	"github.com/bsv-blockchain/go-overlay-client/pkg/admintoken"
	"github.com/bsv-blockchain/go-overlay-client/pkg/pushdrop"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-sdk/script"
)

var errScriptRequired = errors.New("--script is required")

type decodedToken struct {
	LockingPublicKey string               `json:"lockingPublicKey"`
	Fields           []string             `json:"fields"`
	Advertisement    *types.Advertisement `json:"advertisement,omitempty"`
	Error            string               `json:"advertisementError,omitempty"`
}

func runDecode(c *cli.Context) error {
	m := meta(c)

	raw := c.String("script")
	if raw == "" {
		return errScriptRequired
	}
	s, err := script.NewFromHex(raw)
	if err != nil {
		return err
	}

	result, err := pushdrop.Decode(s)
	if err != nil {
		return err
	}
	out := decodedToken{
		LockingPublicKey: hex.EncodeToString(result.LockingPublicKey.Compressed()),
		Fields:           make([]string, 0, len(result.Fields)),
	}
	for _, f := range result.Fields {
		out.Fields = append(out.Fields, hex.EncodeToString(f))
	}

	var ad *types.Advertisement
	if c.Bool("verify") {
		ad, err = admintoken.Verify(context.Background(), s)
	} else {
		ad, err = admintoken.Decode(s)
	}
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Advertisement = ad
	}
	return printJSON(m.out, out)
}
