// Copyright 2025 The whalewatch Authors
// This file is part of whalewatch.
//
// whalewatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// whalewatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with whalewatch. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/tos-network/whalewatch/config"
)

var configCommand = &cli.Command{
	Action:    dumpConfig,
	Name:      "config",
	Usage:     "Show the resolved configuration",
	ArgsUsage: " ",
	Description: `
Prints the configuration after merging defaults, the TOML file and the
environment. RPC URLs are masked so the output is safe to share.`,
}

func dumpConfig(ctx *cli.Context) error {
	setupLogging(ctx)
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Chains:")
	chainTable := tablewriter.NewWriter(os.Stdout)
	chainTable.SetHeader([]string{"Key", "Name", "Chain ID", "RPC", "Explorer"})
	names := make([]string, 0, len(cfg.Chains))
	for name := range cfg.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		desc := cfg.Chains[name]
		chainTable.Append([]string{
			name, desc.Name, fmt.Sprint(desc.ChainID),
			config.MaskURL(desc.RPCURL), desc.Explorer,
		})
	}
	chainTable.Render()

	fmt.Println("\nTokens:")
	tokenTable := tablewriter.NewWriter(os.Stdout)
	tokenTable.SetHeader([]string{"Address", "Chain", "Top N", "Threshold USD"})
	for _, spec := range cfg.Tokens {
		tokenTable.Append([]string{
			spec.Address.Hex(), spec.Chain,
			fmt.Sprint(spec.TopN), fmt.Sprintf("%.2f", spec.ThresholdUSD),
		})
	}
	tokenTable.Render()

	fmt.Println("\nIntervals:")
	intervalTable := tablewriter.NewWriter(os.Stdout)
	intervalTable.SetHeader([]string{"Setting", "Value"})
	for _, row := range [][]string{
		{"BlockPollInterval", cfg.BlockPollInterval.String()},
		{"WhaleRefreshInterval", cfg.WhaleRefreshInterval.String()},
		{"PriceRefreshInterval", cfg.PriceRefreshInterval.String()},
		{"StatusPrintInterval", cfg.StatusPrintInterval.String()},
		{"CacheDir", cfg.CacheDir},
		{"CacheMaxAge", cfg.CacheMaxAge.String()},
		{"TxCacheSize", fmt.Sprint(cfg.TxCacheSize)},
	} {
		intervalTable.Append(row)
	}
	intervalTable.Render()

	fmt.Println("\nSecrets:")
	secretTable := tablewriter.NewWriter(os.Stdout)
	secretTable.SetHeader([]string{"Secret", "State"})
	secretTable.Append([]string{"CHAINBASE_API_KEY", present(cfg.ChainbaseKey)})
	secretTable.Append([]string{"TG_BOT_TOKEN", present(cfg.TelegramToken)})
	secretTable.Append([]string{"TG_CHAT_ID", present(cfg.TelegramChatID)})
	secretTable.Render()
	return nil
}

func present(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "set"
}
