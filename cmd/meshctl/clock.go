package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LingByte/LingMeet/pkg/client"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/utils"
	"github.com/LingByte/LingMeet/pkg/webrtc/rtcmedia"
	rtcconfig "github.com/LingByte/LingMeet/pkg/webrtc/rtcmedia/config"
)

var (
	flagSamples  int
	flagInterval time.Duration
)

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Measure clock offset and round trip time against the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return measureClock()
	},
}

func init() {
	clockCmd.Flags().IntVar(&flagSamples, "samples", 5, "number of pongs to wait for")
	clockCmd.Flags().DurationVar(&flagInterval, "interval", time.Second, "time between pings")
}

func measureClock() error {
	ctx, stop := signalContext()
	defer stop()

	type sample struct {
		offset float64
		rtt    int64
	}
	samples := make(chan sample, flagSamples)

	lg := logger.Named("meshctl")
	factory, err := rtcmedia.NewFactory(rtcconfig.DefaultWebRTCOption(stunURLs()), nil, lg)
	if err != nil {
		return err
	}
	c, err := client.Dial(ctx, client.Options{
		URL:               serverURL(),
		NewTransport:      factory.New,
		ClockSyncInterval: flagInterval,
		OnOffset: func(offset float64, rtt int64) {
			select {
			case samples <- sample{offset, rtt}:
			default:
			}
		},
		Logger: lg,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	if _, _, err := c.Join(ctx, "clock-"+utils.NewShortID(10), displayName()); err != nil {
		return err
	}
	for i := 0; i < flagSamples; i++ {
		select {
		case s := <-samples:
			fmt.Printf("offset %8.1f ms   rtt %4d ms\n", s.offset, s.rtt)
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return client.ErrClosed
		}
	}
	return c.Leave()
}
