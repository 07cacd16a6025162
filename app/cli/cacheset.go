package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/keys"
)

type CacheSetCmd struct{}

func NewCacheSetCmd() *CacheSetCmd {
	return &CacheSetCmd{}
}

func (c *CacheSetCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache-set",
		Short: "Manage cache sets and their members",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the active cache sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(e *env, store *poktinfo.DB) error {
				sets, err := store.ActiveCacheSets(e.ctx)
				if err != nil {
					return err
				}
				printCacheSets(sets)
				return nil
			})
		},
	}

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a cache set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := cmd.Flags().GetString("user")
			if err != nil {
				return fmt.Errorf("failed to get user flag: %w", err)
			}
			public, err := cmd.Flags().GetBool("public")
			if err != nil {
				return fmt.Errorf("failed to get public flag: %w", err)
			}
			internal, err := cmd.Flags().GetBool("internal")
			if err != nil {
				return fmt.Errorf("failed to get internal flag: %w", err)
			}
			inactive, err := cmd.Flags().GetBool("inactive")
			if err != nil {
				return fmt.Errorf("failed to get inactive flag: %w", err)
			}
			return withStore(cmd, func(e *env, store *poktinfo.DB) error {
				cs, err := store.CreateCacheSet(e.ctx, models.CacheSet{
					UserID:     user,
					Name:       args[0],
					IsPublic:   public,
					IsInternal: internal,
					IsActive:   !inactive,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created cache set %d (%s/%s)\n", cs.ID, cs.UserID, cs.Name)
				return nil
			})
		},
	}
	create.Flags().String("user", "internal", "owner of the cache set")
	create.Flags().Bool("public", false, "readable by every user")
	create.Flags().Bool("internal", false, "mark as an internal set")
	create.Flags().Bool("inactive", false, "create without computing rollups for it")

	rename := &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a cache set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCacheSetID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(e *env, store *poktinfo.DB) error {
				return store.RenameCacheSet(e.ctx, id, args[1])
			})
		},
	}

	add := &cobra.Command{
		Use:   "add ID ADDRESS...",
		Short: "Add nodes to a cache set from a height on",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeMembers(cmd, args, func(e *env, store *poktinfo.DB, id int64, addrs []string, height uint64) error {
				return store.AddCacheSetNodes(e.ctx, id, addrs, height)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove ID ADDRESS...",
		Short: "Remove nodes from a cache set from a height on",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeMembers(cmd, args, func(e *env, store *poktinfo.DB, id int64, addrs []string, height uint64) error {
				return store.RemoveCacheSetNodes(e.ctx, id, addrs, height)
			})
		},
	}

	members := &cobra.Command{
		Use:   "members ID",
		Short: "Print the members of a cache set at a height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCacheSetID(args[0])
			if err != nil {
				return err
			}
			height, err := cmd.Flags().GetUint64("height")
			if err != nil {
				return fmt.Errorf("failed to get height flag: %w", err)
			}
			return withStore(cmd, func(e *env, store *poktinfo.DB) error {
				addrs, err := store.CacheSetAddresses(e.ctx, id, height)
				if err != nil {
					return err
				}
				for _, a := range addrs {
					fmt.Fprintln(cmd.OutOrStdout(), a)
				}
				return nil
			})
		},
	}

	for _, sub := range []*cobra.Command{add, remove, members} {
		sub.Flags().Uint64("height", 0, "height the membership change applies from")
		_ = sub.MarkFlagRequired("height")
	}

	cmd.AddCommand(list, create, rename, add, remove, members)
	return cmd
}

func withStore(cmd *cobra.Command, fn func(e *env, store *poktinfo.DB) error) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	store, err := e.store()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(e, store)
}

func changeMembers(cmd *cobra.Command, args []string, fn func(e *env, store *poktinfo.DB, id int64, addrs []string, height uint64) error) error {
	id, err := parseCacheSetID(args[0])
	if err != nil {
		return err
	}
	addrs, err := parseAddresses(args[1:])
	if err != nil {
		return err
	}
	height, err := cmd.Flags().GetUint64("height")
	if err != nil {
		return fmt.Errorf("failed to get height flag: %w", err)
	}
	if height == 0 {
		return fmt.Errorf("height must be positive")
	}
	return withStore(cmd, func(e *env, store *poktinfo.DB) error {
		if _, err := store.CacheSetByID(e.ctx, id); err != nil {
			return err
		}
		if err := fn(e, store, id, addrs, height); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %d members of cache set %d at height %d\n", len(addrs), id, height)
		return nil
	})
}

func parseCacheSetID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid cache set id %q", s)
	}
	return id, nil
}

// parseAddresses lowercases node addresses, drops repeats and rejects anything that is
// not a hex address.
func parseAddresses(args []string) ([]string, error) {
	seen := make(map[string]bool, len(args))
	out := make([]string, 0, len(args))
	for _, a := range args {
		addr := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a), "0x"))
		raw, err := hex.DecodeString(addr)
		if err != nil || len(raw) != keys.AddressLen {
			return nil, fmt.Errorf("invalid address %q", a)
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}

func printCacheSets(sets []models.CacheSet) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"ID", "User", "Name", "Public", "Internal"})
	for _, cs := range sets {
		table.Append([]string{
			strconv.FormatInt(cs.ID, 10),
			cs.UserID,
			cs.Name,
			strconv.FormatBool(cs.IsPublic),
			strconv.FormatBool(cs.IsInternal),
		})
	}
	table.Render()
}
