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

	"github.com/urfave/cli/v2"

	"github.com/tos-network/whalewatch/holdercache"
)

var cacheCommand = &cli.Command{
	Name:  "cache",
	Usage: "Inspect and manage the holder cache",
	Subcommands: []*cli.Command{
		{
			Action:    cacheList,
			Name:      "list",
			Usage:     "List cached holder documents",
			ArgsUsage: " ",
		},
		{
			Action:    cachePurge,
			Name:      "purge",
			Usage:     "Delete every cached holder document",
			ArgsUsage: " ",
		},
	},
}

func openStore(ctx *cli.Context) (*holdercache.Store, error) {
	setupLogging(ctx)
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return holdercache.New(cfg.CacheDir)
}

func cacheList(ctx *cli.Context) error {
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	files := store.ListCached()
	if len(files) == 0 {
		fmt.Println("Holder cache is empty.")
		return nil
	}
	for _, name := range files {
		fmt.Println(name)
	}
	fmt.Printf("%d document(s) in %s\n", len(files), store.Dir())
	return nil
}

func cachePurge(ctx *cli.Context) error {
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	removed := store.ClearAll()
	fmt.Printf("Removed %d document(s) from %s\n", removed, store.Dir())
	return nil
}
