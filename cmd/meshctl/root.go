package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LingByte/LingMeet/pkg/config"
	"github.com/LingByte/LingMeet/pkg/constants"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/utils"
)

var (
	flagServer string
	flagStun   string
	flagName   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meshctl",
	Short: "Join a LingMeet room from the command line",
	Long: `meshctl is a headless LingMeet participant. It connects to the signaling
relay, negotiates a WebRTC link with every other member of the room and
reports what happens on the mesh.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		return logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Mode)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "relay websocket url (default $SERVER_URL or ws://localhost:7072/ws)")
	rootCmd.PersistentFlags().StringVar(&flagStun, "stun", "", "comma separated STUN urls, overrides $STUN_SERVERS")
	rootCmd.PersistentFlags().StringVar(&flagName, "name", "", "display name shown to the room")
	rootCmd.AddCommand(joinCmd, clockCmd)
}

func serverURL() string {
	if flagServer != "" {
		return flagServer
	}
	return utils.GetStringOrDefault(constants.ENV_SERVER_URL, "ws://localhost"+constants.DefaultAddr+"/ws")
}

func stunURLs() []string {
	if urls := utils.SplitURLs(flagStun); len(urls) > 0 {
		return urls
	}
	return config.GlobalConfig.Mesh.StunServers
}

func displayName() string {
	if flagName != "" {
		return flagName
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "meshctl"
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
