package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/discord2vrc/discord2vrc/config"
	"github.com/discord2vrc/discord2vrc/database"
	"github.com/discord2vrc/discord2vrc/database/repo/channels"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"github.com/spf13/cobra"
)

// channelsCmd 频道注册表管理命令
var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Channel registry tools",
}

// channelsListCmd 打印频道注册表
var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known channels and their image counts",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		if err := runChannelsList(cmd.Context(), all); err != nil {
			log.Fatalf("List channels failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	channelsCmd.AddCommand(channelsListCmd)
	channelsListCmd.Flags().Bool("all", false, "Include unsubscribed channels")
}

func runChannelsList(ctx context.Context, all bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	config.InitConfig()
	factory, err := database.NewFactory(config.Get())
	if err != nil {
		return err
	}
	defer factory.Close()

	provider := factory.GetProvider()
	reg := registry.New(channels.NewRepository(provider))
	if err := reg.Reload(ctx); err != nil {
		return err
	}
	imagesRepo := images.NewRepository(provider)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tCHANNEL ID\tNAME\tGUILD\tSUBSCRIBED\tIMAGES\tDELETED")
	for _, ch := range reg.Channels() {
		if !ch.Subscribed && !all {
			continue
		}
		id := ch.ID
		active, err := imagesRepo.Count(ctx, images.Active(&id))
		if err != nil {
			return err
		}
		deleted := true
		removed, err := imagesRepo.Count(ctx, images.Filter{ChannelRefID: &id, Deleted: &deleted})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%d\n", ch.Alias, ch.ChannelID, ch.ChannelName, ch.Guild, ch.Subscribed, active, removed)
	}
	return w.Flush()
}
