package main

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/client"
	"github.com/LingByte/LingMeet/pkg/config"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/protocol"
	"github.com/LingByte/LingMeet/pkg/webrtc/rtcmedia"
	rtcconfig "github.com/LingByte/LingMeet/pkg/webrtc/rtcmedia/config"
)

var (
	flagChat  string
	flagAudio bool
)

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and stay until interrupted",
	Long: `Join a room, connect to every member and log mesh events.

Examples:
  meshctl join standup
  meshctl join standup --name bot --chat "hello"
  meshctl join standup --audio`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(args[0])
	},
}

func init() {
	joinCmd.Flags().StringVar(&flagChat, "chat", "", "chat message to send after joining")
	joinCmd.Flags().BoolVar(&flagAudio, "audio", false, "offer an (empty) opus audio track")
}

// meshLog prints mesh events.
type meshLog struct{ lg *zap.Logger }

func (m meshLog) PeerJoined(remote, name string) {
	m.lg.Info("peer joined", zap.String("remote_id", remote), zap.String("name", name))
}
func (m meshLog) PeerLeft(remote string) { m.lg.Info("peer left", zap.String("remote_id", remote)) }
func (m meshLog) LinkConnected(remote string) {
	m.lg.Info("link connected", zap.String("remote_id", remote))
}
func (m meshLog) LinkClosed(remote string, reason error) {
	m.lg.Info("link closed", zap.String("remote_id", remote), zap.Error(reason))
}

func joinRoom(roomKey string) error {
	ctx, stop := signalContext()
	defer stop()
	lg := logger.Named("meshctl")

	opt := rtcconfig.DefaultWebRTCOption(stunURLs())
	var tracks []webrtc.TrackLocal
	if flagAudio {
		track, err := rtcmedia.NewSampleTrack(webrtc.MimeTypeOpus, opt)
		if err != nil {
			return err
		}
		tracks = append(tracks, track)
	}
	factory, err := rtcmedia.NewFactory(opt, tracks, lg)
	if err != nil {
		return err
	}
	factory.OnData = func(remote string, data []byte) {
		fmt.Printf("[data %s] %s\n", remote, data)
	}
	factory.OnTrack = func(remote string, track *webrtc.TrackRemote) {
		lg.Info("remote track", zap.String("remote_id", remote), zap.String("kind", track.Kind().String()))
	}

	c, err := client.Dial(ctx, client.Options{
		URL:                serverURL(),
		NewTransport:       factory.New,
		NegotiationTimeout: config.GlobalConfig.Mesh.NegotiationTimeout,
		MeshObserver:       meshLog{lg: lg},
		ClockSyncInterval:  config.GlobalConfig.Mesh.ClockSyncInterval,
		OnChat: func(env *protocol.Envelope) {
			fmt.Printf("[%s] %s: %s\n", time.UnixMilli(env.At).Format(time.Kitchen), env.Name, env.Text)
		},
		OnWhiteboard: func(env *protocol.Envelope) {
			lg.Debug("whiteboard", zap.String("from", env.From), zap.String("type", env.Board.Type))
		},
		OnError: func(body *protocol.ErrorBody) {
			lg.Warn("relay error", zap.String("code", body.Code), zap.String("message", body.Message))
		},
		Logger: lg,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	self, peers, err := c.Join(ctx, roomKey, displayName())
	if err != nil {
		return err
	}
	fmt.Printf("joined %s as %s with %d other member(s)\n", roomKey, self, len(peers))

	if flagChat != "" {
		if err := c.SendChat(flagChat); err != nil {
			return err
		}
		factory.Broadcast([]byte(flagChat))
	}

	select {
	case <-ctx.Done():
		return c.Leave()
	case <-c.Done():
		return client.ErrClosed
	}
}
