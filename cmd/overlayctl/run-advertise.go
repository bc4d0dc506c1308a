package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/urfave/cli"

	"github.com/bsv-blockchain/go-overlay-client/pkg/advertiser"
	"github.com/bsv-blockchain/go-overlay-client/pkg/lookup"
	"github.com/bsv-blockchain/go-overlay-client/pkg/topic"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-sdk/overlay"
)

var errNothingToAdvertise = errors.New("at least one --ship or --slap name is required")

func runAdvertise(c *cli.Context) error {
	m := meta(c)
	ctx := context.Background()

	var ads []*types.AdvertisementData
	for _, name := range c.StringSlice("ship") {
		ads = append(ads, &types.AdvertisementData{Protocol: overlay.ProtocolSHIP, TopicOrServiceName: name})
	}
	for _, name := range c.StringSlice("slap") {
		ads = append(ads, &types.AdvertisementData{Protocol: overlay.ProtocolSLAP, TopicOrServiceName: name})
	}
	if len(ads) == 0 {
		return errNothingToAdvertise
	}

	chain := lookup.NetworkName(m.config.NetworkPreset())
	wlt, err := advertiser.NewToolboxWallet(ctx, chain, c.String("key"), m.logger)
	if err != nil {
		return err
	}

	resolver := lookup.NewResolver(m.config.ResolverConfig(m.logger))
	wa, err := advertiser.NewWalletAdvertiser(chain, c.String("uri"), wlt,
		advertiser.WithResolver(resolver),
		advertiser.WithLogger(m.logger),
	)
	if err != nil {
		return err
	}
	if err := wa.Init(ctx); err != nil {
		return err
	}

	tagged, err := wa.CreateAdvertisements(ctx, ads)
	if err != nil {
		return err
	}
	m.logger.Info("Created advertisements", "count", len(ads), "identityKey", wa.IdentityKey())

	if c.Bool("dry-run") {
		return printJSON(m.out, map[string]interface{}{
			"beef":   hex.EncodeToString(tagged.Beef),
			"topics": tagged.Topics,
		})
	}

	b, err := topic.NewBroadcaster(tagged.Topics, m.config.BroadcasterConfig(resolver, m.logger))
	if err != nil {
		return err
	}
	result, err := b.BroadcastTaggedBEEF(ctx, tagged)
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
