package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/bsv-blockchain/go-overlay-client/pkg/lookup"
	"github.com/bsv-blockchain/go-overlay-client/pkg/topic"
	"github.com/bsv-blockchain/go-sdk/overlay"
)

var errBEEFSource = errors.New("exactly one of --file or --hex is required")

func runBroadcast(c *cli.Context) error {
	m := meta(c)

	beef, err := readBEEF(c.String("file"), c.String("hex"))
	if err != nil {
		return err
	}

	topics := c.StringSlice("topics")
	if len(topics) == 0 {
		topics = m.config.Broadcast.Topics
	}

	result, err := broadcast(m, topics, &overlay.TaggedBEEF{Beef: beef})
	if err != nil {
		return err
	}
	if err := printJSON(m.out, result); err != nil {
		return err
	}
	if result.Status != topic.StatusSuccess {
		return fmt.Errorf("%s: %s", result.Code, result.Description)
	}
	return nil
}

func broadcast(m *metadata, topics []string, tagged *overlay.TaggedBEEF) (*topic.Result, error) {
	resolver := lookup.NewResolver(m.config.ResolverConfig(m.logger))
	b, err := topic.NewBroadcaster(topics, m.config.BroadcasterConfig(resolver, m.logger))
	if err != nil {
		return nil, err
	}
	return b.BroadcastTaggedBEEF(context.Background(), tagged)
}

func readBEEF(file, hexBEEF string) ([]byte, error) {
	switch {
	case file != "" && hexBEEF == "":
		return os.ReadFile(filepath.Clean(file))
	case hexBEEF != "" && file == "":
		beef, err := hex.DecodeString(hexBEEF)
		if err != nil {
			return nil, fmt.Errorf("invalid --hex: %w", err)
		}
		return beef, nil
	default:
		return nil, errBEEFSource
	}
}
