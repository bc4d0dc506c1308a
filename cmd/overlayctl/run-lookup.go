package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urfave/cli"

	"github.com/bsv-blockchain/go-overlay-client/pkg/lookup"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
)

var (
	errServiceRequired = errors.New("--service is required")
	errInvalidQuery    = errors.New("--query must be valid JSON")
)

func runLookup(c *cli.Context) error {
	m := meta(c)

	service := c.String("service")
	if service == "" {
		return errServiceRequired
	}
	query := json.RawMessage(c.String("query"))
	if !json.Valid(query) {
		return fmt.Errorf("%w: %s", errInvalidQuery, query)
	}

	resolver := lookup.NewResolver(m.config.ResolverConfig(m.logger))
	answer, err := resolver.Query(context.Background(), &types.LookupQuestion{Service: service, Query: query}, m.config.Timeout)
	if err != nil {
		return err
	}

	out, err := types.EncodeLookupAnswer(answer)
	if err != nil {
		return err
	}
	var pretty interface{}
	if err := json.Unmarshal(out, &pretty); err != nil {
		return err
	}
	return printJSON(m.out, pretty)
}

func runHosts(c *cli.Context) error {
	m := meta(c)

	service := c.String("service")
	if service == "" {
		return errServiceRequired
	}

	resolver := lookup.NewResolver(m.config.ResolverConfig(m.logger))
	hosts, err := resolver.FindCompetentHosts(context.Background(), service)
	if err != nil {
		return err
	}
	if hosts == nil {
		hosts = []string{}
	}
	return printJSON(m.out, hosts)
}
